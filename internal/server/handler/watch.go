package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/service"
)

// WatchService defines the methods that the watch handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type WatchService interface {
	CreateWatch(ctx context.Context, p service.CreateWatchParams) (domain.WatchRequest, error)
	GetWatch(ctx context.Context, id string) (domain.WatchRequest, error)
	ListPending(ctx context.Context) ([]domain.WatchRequest, error)
}

// WatchHandler serves watch-request HTTP endpoints.
type WatchHandler struct {
	watches WatchService
	logger  *slog.Logger
}

// NewWatchHandler creates a WatchHandler with the given service and logger.
func NewWatchHandler(watches WatchService, logger *slog.Logger) *WatchHandler {
	return &WatchHandler{
		watches: watches,
		logger:  logger,
	}
}

// createWatchRequest is the JSON body for creating a watch request. AssetIDs
// may be omitted to cover the owner's full holdings in the collection.
type createWatchRequest struct {
	Owner         string   `json:"owner"`
	Collection    string   `json:"collection"`
	FloorPriceUsd float64  `json:"floor_price_usd"`
	AssetIDs      []string `json:"asset_ids,omitempty"`
	NotifyEmail   string   `json:"notify_email,omitempty"`
}

// watchResponse is the wire representation of a watch request.
type watchResponse struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	Collection      string    `json:"collection"`
	FloorPriceUsd   float64   `json:"floor_price_usd"`
	AssetIDs        []string  `json:"asset_ids"`
	NotifyEmail     string    `json:"notify_email,omitempty"`
	IsOfferAccepted bool      `json:"is_offer_accepted"`
	MatchedMaker    string    `json:"matched_maker,omitempty"`
	MatchedAmount   float64   `json:"matched_amount,omitempty"`
	Receipt         string    `json:"receipt,omitempty"`
	IsNotified      bool      `json:"is_notified"`
	CreatedAt       time.Time `json:"created_at"`
}

func toWatchResponse(r domain.WatchRequest) watchResponse {
	return watchResponse{
		ID:              r.ID,
		Owner:           r.Owner,
		Collection:      r.Collection,
		FloorPriceUsd:   r.FloorPriceUsd,
		AssetIDs:        r.AssetIDs,
		NotifyEmail:     r.NotifyEmail,
		IsOfferAccepted: r.IsOfferAccepted,
		MatchedMaker:    r.MatchedMaker,
		MatchedAmount:   r.MatchedAmount,
		Receipt:         string(r.Receipt),
		IsNotified:      r.IsNotified,
		CreatedAt:       r.CreatedAt,
	}
}

// listWatchesResponse wraps the list endpoint output.
type listWatchesResponse struct {
	Watches []watchResponse `json:"watches"`
	Count   int             `json:"count"`
}

// CreateWatch registers a new watch request from a JSON body.
// POST /api/watch
func (h *WatchHandler) CreateWatch(w http.ResponseWriter, r *http.Request) {
	var body createWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.Owner == "" || body.Collection == "" {
		writeError(w, http.StatusBadRequest, "owner and collection are required")
		return
	}
	if body.FloorPriceUsd <= 0 {
		writeError(w, http.StatusBadRequest, "floor_price_usd must be positive")
		return
	}

	req, err := h.watches.CreateWatch(r.Context(), service.CreateWatchParams{
		Owner:         body.Owner,
		Collection:    body.Collection,
		FloorPriceUsd: body.FloorPriceUsd,
		AssetIDs:      body.AssetIDs,
		NotifyEmail:   body.NotifyEmail,
	})
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		if errors.Is(err, domain.ErrUpstream) {
			writeError(w, http.StatusBadGateway, "marketplace unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create watch failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create watch request")
		return
	}

	writeJSON(w, http.StatusCreated, toWatchResponse(req))
}

// GetWatch returns a single watch request by its ID.
// GET /api/watch/{id}
func (h *WatchHandler) GetWatch(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing watch id")
		return
	}

	req, err := h.watches.GetWatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "watch request not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get watch failed",
			slog.String("watch_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get watch request")
		return
	}

	writeJSON(w, http.StatusOK, toWatchResponse(req))
}

// ListWatches returns all watch requests still awaiting a match.
// GET /api/watch
func (h *WatchHandler) ListWatches(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.watches.ListPending(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list watches failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list watch requests")
		return
	}

	out := make([]watchResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toWatchResponse(req))
	}

	writeJSON(w, http.StatusOK, listWatchesResponse{
		Watches: out,
		Count:   len(out),
	})
}
