package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// exportPrefix is the object-key prefix the archive task writes exports under.
const exportPrefix = "archive/"

// ExportSource defines the blob-storage reads the archive handler requires.
type ExportSource interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// ArchiveHandler serves the cold-storage exports written by the archive task.
type ArchiveHandler struct {
	blobs  ExportSource
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the given blob source.
func NewArchiveHandler(blobs ExportSource, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger,
	}
}

// exportResponse is the wire representation of one export object.
type exportResponse struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// listExportsResponse wraps the export listing output.
type listExportsResponse struct {
	Exports []exportResponse `json:"exports"`
	Count   int              `json:"count"`
}

// ListExports lists the JSONL exports in cold storage.
// GET /api/archive
func (h *ArchiveHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.blobs.List(r.Context(), exportPrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list exports failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list exports")
		return
	}

	out := make([]exportResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, exportResponse{
			Key:          strings.TrimPrefix(info.Path, exportPrefix),
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, listExportsResponse{
		Exports: out,
		Count:   len(out),
	})
}

// GetExport streams a single export from cold storage. The key is relative to
// the export prefix, e.g. watch_requests/2026-08.jsonl.
// GET /api/archive/{key...}
func (h *ArchiveHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	// Exports live under a fixed prefix; a traversing key can only miss.
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid export key")
		return
	}

	body, err := h.blobs.Get(r.Context(), exportPrefix+key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get export failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch export")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: export stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
