// Package notify delivers settlement alerts. Operator channels (Telegram,
// Discord) receive every allowed event; watch-request owners are additionally
// notified by email when their offer settles.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Sender is the interface that each operator notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// OwnerSender delivers a notification to a specific recipient address. Used
// for per-watch-request owner notifications.
type OwnerSender interface {
	SendTo(ctx context.Context, recipient, subject, body string) error
}

// Notifier dispatches notifications to the operator senders and, when
// configured, to watch-request owners. It maintains a set of allowed event
// types; Notify only forwards events in the allowed set.
type Notifier struct {
	senders []Sender
	owner   OwnerSender // may be nil
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// whose type appears in events are forwarded by Notify; an empty list allows
// everything. owner may be nil when owner email is not configured.
func NewNotifier(senders []Sender, owner OwnerSender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		owner:   owner,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all operator senders if the event type is
// allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyOwner delivers a settlement notice to the owner's address. It is a
// no-op when no owner channel is configured or the recipient is empty, so
// callers do not need to special-case requests without an email.
func (n *Notifier) NotifyOwner(ctx context.Context, recipient, subject, body string) error {
	if n.owner == nil || recipient == "" {
		return nil
	}
	if err := n.owner.SendTo(ctx, recipient, subject, body); err != nil {
		return fmt.Errorf("notify: owner %s: %w", recipient, err)
	}
	return nil
}

// dispatch iterates over all senders. A single sender failure does not stop
// delivery to the rest; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// postJSON posts a JSON payload and checks for a 2xx status. Shared by the
// webhook-style senders.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
