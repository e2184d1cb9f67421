package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/service"
)

type fakeWatchService struct {
	created *service.CreateWatchParams
	reqs    map[string]domain.WatchRequest
	err     error
}

func (f *fakeWatchService) CreateWatch(_ context.Context, p service.CreateWatchParams) (domain.WatchRequest, error) {
	if f.err != nil {
		return domain.WatchRequest{}, f.err
	}
	f.created = &p
	return domain.WatchRequest{
		ID:            "req-1",
		Owner:         p.Owner,
		Collection:    p.Collection,
		FloorPriceUsd: p.FloorPriceUsd,
		AssetIDs:      p.AssetIDs,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func (f *fakeWatchService) GetWatch(_ context.Context, id string) (domain.WatchRequest, error) {
	req, ok := f.reqs[id]
	if !ok {
		return domain.WatchRequest{}, domain.ErrNotFound
	}
	return req, nil
}

func (f *fakeWatchService) ListPending(context.Context) ([]domain.WatchRequest, error) {
	var out []domain.WatchRequest
	for _, r := range f.reqs {
		out = append(out, r)
	}
	return out, nil
}

func TestCreateWatchReturns201(t *testing.T) {
	svc := &fakeWatchService{}
	h := NewWatchHandler(svc, slog.Default())

	body := `{"owner":"0xowner","collection":"0xabc","floor_price_usd":15,"asset_ids":["0xabc:1"]}`
	r := httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.CreateWatch(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, "0xowner", svc.created.Owner)

	var resp watchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.ID)
	assert.False(t, resp.IsOfferAccepted)
}

func TestCreateWatchRejectsMissingFields(t *testing.T) {
	h := NewWatchHandler(&fakeWatchService{}, slog.Default())

	cases := []string{
		`{"collection":"0xabc","floor_price_usd":15}`,
		`{"owner":"0xowner","floor_price_usd":15}`,
		`{"owner":"0xowner","collection":"0xabc","floor_price_usd":0}`,
		`not json`,
	}
	for _, body := range cases {
		r := httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.CreateWatch(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
}

func TestGetWatchNotFound(t *testing.T) {
	h := NewWatchHandler(&fakeWatchService{reqs: map[string]domain.WatchRequest{}}, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/watch/{id}", h.GetWatch)

	r := httptest.NewRequest(http.MethodGet, "/api/watch/missing", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetWatchFound(t *testing.T) {
	req := domain.WatchRequest{
		ID:              "req-7",
		Owner:           "0xowner",
		Collection:      "0xabc",
		FloorPriceUsd:   15,
		AssetIDs:        []string{"0xabc:1"},
		IsOfferAccepted: true,
		MatchedMaker:    "0xmaker",
		MatchedAmount:   18.5,
		Receipt:         "0xreceipt",
	}
	h := NewWatchHandler(&fakeWatchService{reqs: map[string]domain.WatchRequest{"req-7": req}}, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/watch/{id}", h.GetWatch)

	r := httptest.NewRequest(http.MethodGet, "/api/watch/req-7", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp watchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsOfferAccepted)
	assert.Equal(t, "0xmaker", resp.MatchedMaker)
	assert.Equal(t, "0xreceipt", resp.Receipt)
}

func TestCreateWatchUpstreamMapsTo502(t *testing.T) {
	h := NewWatchHandler(&fakeWatchService{err: domain.ErrUpstream}, slog.Default())

	body := `{"owner":"0xowner","collection":"0xabc","floor_price_usd":15}`
	r := httptest.NewRequest(http.MethodPost, "/api/watch", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateWatch(w, r)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
