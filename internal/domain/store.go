package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// WatchStore persists watch requests. Rows are append-then-update only:
// nothing deletes a watch request, so the table doubles as an audit log.
type WatchStore interface {
	Create(ctx context.Context, req WatchRequest) error
	GetByID(ctx context.Context, id string) (WatchRequest, error)
	// ListPending returns requests with IsOfferAccepted = false, oldest first.
	ListPending(ctx context.Context) ([]WatchRequest, error)
	// RecordMatch flips IsOfferAccepted and stores the match projection. It is
	// the single point that performs the flip: a request that is already
	// accepted yields ErrAlreadyAccepted and no other column changes.
	RecordMatch(ctx context.Context, id, maker string, amountUsd float64, receipt ReceiptID) error
	// MarkNotified sets IsNotified after a confirmed notification dispatch.
	MarkNotified(ctx context.Context, id string) error
	// ListUnnotified returns accepted requests whose owner has not been told
	// yet, so notification dispatch can be retried.
	ListUnnotified(ctx context.Context) ([]WatchRequest, error)
	// ListSettled returns accepted-and-notified requests created before the
	// cutoff, for cold-storage export.
	ListSettled(ctx context.Context, before time.Time, opts ListOpts) ([]WatchRequest, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
