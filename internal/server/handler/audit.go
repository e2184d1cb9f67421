package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// AuditSource defines the read side of the audit log the handler requires.
type AuditSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit log endpoint.
type AuditHandler struct {
	audit  AuditSource
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler with the given source and logger.
func NewAuditHandler(audit AuditSource, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// auditEntryResponse is the wire representation of an audit entry.
type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// listAuditResponse wraps the audit list output.
type listAuditResponse struct {
	Entries []auditEntryResponse `json:"entries"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// ListEntries returns audit log entries, newest first.
// GET /api/audit?limit=50&offset=0&since=2026-01-01T00:00:00Z
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit entries failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, listAuditResponse{
		Entries: out,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}
