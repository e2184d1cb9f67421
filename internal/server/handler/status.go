package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status (run mode, configured chains).
type StatusHandler struct {
	Mode      string
	Chains    []string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler with the given mode and chain set.
func NewStatusHandler(mode string, chains []string) *StatusHandler {
	return &StatusHandler{
		Mode:      mode,
		Chains:    chains,
		StartedAt: time.Now().UTC(),
	}
}

// GetStatus responds with the current run mode, chains, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"chains":         h.Chains,
		"uptime_seconds": uptime,
	})
}
