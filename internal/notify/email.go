package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailSender delivers owner notifications over SMTP.
type EmailSender struct {
	host string
	port int
	from string
	auth smtp.Auth
}

// NewEmailSender creates an EmailSender. username and password may be empty
// for unauthenticated relays.
func NewEmailSender(host string, port int, from, username, password string) *EmailSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailSender{host: host, port: port, from: from, auth: auth}
}

// SendTo delivers a plain-text message to the recipient. net/smtp does not
// take a context, so cancellation only applies before the dial.
func (e *EmailSender) SendTo(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("email: %w", err)
	}

	msg := strings.Join([]string{
		"From: " + e.from,
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	if err := smtp.SendMail(addr, e.auth, e.from, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("email: send to %s: %w", recipient, err)
	}
	return nil
}

var _ OwnerSender = (*EmailSender)(nil)
