package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

type fakeExportSource struct {
	infos   []domain.BlobInfo
	objects map[string]string
}

func (f *fakeExportSource) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for _, info := range f.infos {
		if strings.HasPrefix(info.Path, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *fakeExportSource) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("fake: %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func newArchiveMux(src *fakeExportSource) *http.ServeMux {
	h := NewArchiveHandler(src, slog.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archive", h.ListExports)
	mux.HandleFunc("GET /api/archive/{key...}", h.GetExport)
	return mux
}

func TestListExportsStripsPrefix(t *testing.T) {
	mux := newArchiveMux(&fakeExportSource{
		infos: []domain.BlobInfo{
			{Path: "archive/watch_requests/2026-07.jsonl", Size: 120, LastModified: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
			{Path: "archive/watch_requests/2026-08.jsonl", Size: 340},
			{Path: "unrelated/object", Size: 1},
		},
	})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/archive", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"watch_requests/2026-07.jsonl"`)
	assert.Contains(t, body, `"count":2`)
	assert.NotContains(t, body, "unrelated")
}

func TestGetExportStreamsObject(t *testing.T) {
	mux := newArchiveMux(&fakeExportSource{
		objects: map[string]string{
			"archive/watch_requests/2026-08.jsonl": `{"id":"w1"}` + "\n",
		},
	})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/archive/watch_requests/2026-08.jsonl", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, `{"id":"w1"}`+"\n", w.Body.String())
}

func TestGetExportMissing(t *testing.T) {
	mux := newArchiveMux(&fakeExportSource{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/archive/watch_requests/1999-01.jsonl", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetExportRejectsTraversal(t *testing.T) {
	_ = newArchiveMux(&fakeExportSource{})

	r := httptest.NewRequest(http.MethodGet, "/api/archive/a", nil)
	r.SetPathValue("key", "../secrets")
	w := httptest.NewRecorder()
	NewArchiveHandler(&fakeExportSource{}, slog.Default()).GetExport(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
