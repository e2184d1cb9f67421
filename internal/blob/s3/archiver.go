package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// SettledSource provides read access to settled watch requests for archival.
// The Postgres watch store satisfies it through ListSettled.
type SettledSource interface {
	ListSettled(ctx context.Context, before time.Time, opts domain.ListOpts) ([]domain.WatchRequest, error)
}

// ArchiveImpl implements domain.Archiver by exporting settled watch requests
// as JSONL to object storage.
//
// Rows are intentionally NOT deleted from the primary store: the table is
// the system of record and the export is a cold copy.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	settled SettledSource
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, settled SettledSource, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		settled: settled,
		audit:   audit,
	}
}

// ArchiveSettled exports all settled watch requests created before the
// cutoff to archive/watch_requests/YYYY-MM.jsonl, records the export in the
// audit log, and returns the exported count.
func (a *ArchiveImpl) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	reqs, err := a.settled.ListSettled(ctx, before, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled query: %w", err)
	}
	if len(reqs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(reqs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled marshal: %w", err)
	}

	path := archivePath("watch_requests", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settled upload: %w", err)
	}

	count := int64(len(reqs))

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.watch_requests", map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive settled audit log: %w", err)
		}
	}

	return count, nil
}

// archivePath builds the object key for an export, partitioned by the
// year-month of the cutoff time, e.g. archive/watch_requests/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
