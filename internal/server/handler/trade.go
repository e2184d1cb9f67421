package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/service"
)

// TradeService defines the methods that the trade handler requires from the
// service layer.
type TradeService interface {
	SearchCollections(ctx context.Context, name string) ([]domain.Collection, error)
	SearchListings(ctx context.Context, collection string, limit int, filter domain.ListingFilter) ([]domain.Listing, error)
	BuyFloor(ctx context.Context, p service.BuyParams) (service.BuyResult, error)
	PlaceOffer(ctx context.Context, p service.OfferParams) (service.OfferResult, error)
}

// TradeHandler serves listing search, floor buying, and offer endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// listingResponse is the wire representation of a listing. FloorPriceUsd is
// null when the marketplace could not resolve a price for the asset.
type listingResponse struct {
	AssetID       string   `json:"asset_id"`
	Collection    string   `json:"collection"`
	TokenID       string   `json:"token_id"`
	Name          string   `json:"name,omitempty"`
	ImageURI      string   `json:"image_uri,omitempty"`
	FloorPriceUsd *float64 `json:"floor_price_usd"`
	FloorPrice    float64  `json:"floor_price,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	OrderID       string   `json:"order_id,omitempty"`
	Marketplace   string   `json:"marketplace,omitempty"`
}

func toListingResponse(l domain.Listing) listingResponse {
	resp := listingResponse{
		AssetID:     l.AssetID,
		Collection:  l.Collection,
		TokenID:     l.TokenID,
		Name:        l.Name,
		ImageURI:    l.ImageURI,
		FloorPrice:  l.FloorPrice,
		Currency:    l.Currency,
		OrderID:     l.OrderID,
		Marketplace: l.Marketplace,
	}
	// +Inf marks an unpriced asset and is not representable in JSON.
	if l.HasPrice() {
		price := l.FloorPriceUsd
		resp.FloorPriceUsd = &price
	}
	return resp
}

// listListingsResponse wraps the listing search output.
type listListingsResponse struct {
	Listings []listingResponse `json:"listings"`
	Count    int               `json:"count"`
}

// collectionResponse is the wire representation of a collection search match.
type collectionResponse struct {
	Contract string `json:"contract"`
	Name     string `json:"name"`
	ImageURI string `json:"image_uri,omitempty"`
}

// listCollectionsResponse wraps the collection search output.
type listCollectionsResponse struct {
	Collections []collectionResponse `json:"collections"`
	Count       int                  `json:"count"`
}

// SearchCollections resolves a collection name to marketplace contracts.
// GET /api/collections?name=cool+apes
func (h *TradeHandler) SearchCollections(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name query parameter required")
		return
	}

	cols, err := h.trades.SearchCollections(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		if errors.Is(err, domain.ErrUpstream) {
			writeError(w, http.StatusBadGateway, "marketplace unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: search collections failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to search collections")
		return
	}

	out := make([]collectionResponse, 0, len(cols))
	for _, c := range cols {
		out = append(out, collectionResponse{
			Contract: c.Contract,
			Name:     c.Name,
			ImageURI: c.ImageURI,
		})
	}
	writeJSON(w, http.StatusOK, listCollectionsResponse{
		Collections: out,
		Count:       len(out),
	})
}

// parseListingFilter reads the optional token_id and attributes query
// parameters. Attributes may repeat: ?attributes=Gold&attributes=Laser.
func parseListingFilter(r *http.Request) domain.ListingFilter {
	q := r.URL.Query()
	return domain.ListingFilter{
		TokenID:    q.Get("token_id"),
		Attributes: q["attributes"],
	}
}

// SearchListings returns a collection's listings ascending by USD price. The
// collection may be a contract address or a name.
// GET /api/listings?collection=0x...&limit=50&token_id=42&attributes=Gold
func (h *TradeHandler) SearchListings(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "collection query parameter required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	listings, err := h.trades.SearchListings(r.Context(), collection, limit, parseListingFilter(r))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "collection not found")
			return
		}
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		if errors.Is(err, domain.ErrUpstream) {
			writeError(w, http.StatusBadGateway, "marketplace unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: search listings failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to search listings")
		return
	}

	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingResponse(l))
	}

	writeJSON(w, http.StatusOK, listListingsResponse{
		Listings: out,
		Count:    len(out),
	})
}

// buyRequest is the JSON body for a budgeted floor sweep. TokenID and
// Attributes optionally narrow the sweep; token_id wins when both are set.
type buyRequest struct {
	Collection string   `json:"collection"`
	BudgetUsd  float64  `json:"budget_usd"`
	Chain      string   `json:"chain"`
	TokenID    string   `json:"token_id,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
}

// buyResponse reports what a floor sweep bought.
type buyResponse struct {
	Purchased []listingResponse `json:"purchased"`
	TotalUsd  float64           `json:"total_usd"`
	Receipt   string            `json:"receipt,omitempty"`
}

// BuyFloor buys the cheapest listings of a collection that fit a USD budget.
// POST /api/buy
func (h *TradeHandler) BuyFloor(w http.ResponseWriter, r *http.Request) {
	var body buyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.Collection == "" {
		writeError(w, http.StatusBadRequest, "collection is required")
		return
	}
	if body.BudgetUsd <= 0 {
		writeError(w, http.StatusBadRequest, "budget_usd must be positive")
		return
	}

	res, err := h.trades.BuyFloor(r.Context(), service.BuyParams{
		Collection: body.Collection,
		BudgetUsd:  body.BudgetUsd,
		Chain:      domain.ChainID(body.Chain),
		Filter: domain.ListingFilter{
			TokenID:    body.TokenID,
			Attributes: body.Attributes,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "collection not found")
			return
		}
		if errors.Is(err, domain.ErrUnsupportedChain) {
			writeError(w, http.StatusBadRequest, "unsupported chain: "+body.Chain)
			return
		}
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		if errors.Is(err, domain.ErrUpstream) {
			writeError(w, http.StatusBadGateway, "marketplace unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: buy floor failed",
			slog.String("collection", body.Collection),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to buy floor")
		return
	}

	purchased := make([]listingResponse, 0, len(res.Purchased))
	for _, l := range res.Purchased {
		purchased = append(purchased, toListingResponse(l))
	}

	writeJSON(w, http.StatusOK, buyResponse{
		Purchased: purchased,
		TotalUsd:  res.TotalUsd,
		Receipt:   string(res.Receipt),
	})
}

// offerRequest is the JSON body for placing an offer on a single asset.
type offerRequest struct {
	AssetID        string  `json:"asset_id"`
	AmountUsd      float64 `json:"amount_usd"`
	ExpirationTime int64   `json:"expiration_time,omitempty"`
}

// offerResponse reports a placed offer.
type offerResponse struct {
	AssetID   string  `json:"asset_id"`
	AmountUsd float64 `json:"amount_usd"`
	WeiPrice  string  `json:"wei_price"`
}

// PlaceOffer places a signed offer on an asset at a USD amount.
// POST /api/offers
func (h *TradeHandler) PlaceOffer(w http.ResponseWriter, r *http.Request) {
	var body offerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.AssetID == "" {
		writeError(w, http.StatusBadRequest, "asset_id is required")
		return
	}
	if body.AmountUsd <= 0 {
		writeError(w, http.StatusBadRequest, "amount_usd must be positive")
		return
	}

	res, err := h.trades.PlaceOffer(r.Context(), service.OfferParams{
		AssetID:        body.AssetID,
		AmountUsd:      body.AmountUsd,
		ExpirationTime: body.ExpirationTime,
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
		h.logger.ErrorContext(r.Context(), "handler: place offer failed",
			slog.String("asset_id", body.AssetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place offer")
		return
	}

	writeJSON(w, http.StatusCreated, offerResponse{
		AssetID:   res.AssetID,
		AmountUsd: res.AmountUsd,
		WeiPrice:  res.WeiPrice,
	})
}
