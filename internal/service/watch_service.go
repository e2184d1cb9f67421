// Package service implements the application use cases on top of the domain
// stores, the marketplace client, and the executor.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// TokenSource resolves collection names and which assets a user holds in a
// collection.
type TokenSource interface {
	SearchCollections(ctx context.Context, name string) ([]domain.Collection, error)
	GetUserTokens(ctx context.Context, user, collection string) ([]string, error)
}

// WatchService manages the lifecycle of watch requests.
type WatchService struct {
	store  domain.WatchStore
	audit  domain.AuditStore
	tokens TokenSource
	logger *slog.Logger
}

// NewWatchService creates a WatchService.
func NewWatchService(store domain.WatchStore, audit domain.AuditStore, tokens TokenSource, logger *slog.Logger) *WatchService {
	return &WatchService{
		store:  store,
		audit:  audit,
		tokens: tokens,
		logger: logger.With(slog.String("component", "watch_service")),
	}
}

// CreateWatchParams describes a new watch request. AssetIDs may be left
// empty, in which case the owner's holdings in the collection are resolved
// from the marketplace.
type CreateWatchParams struct {
	Owner         string
	Collection    string
	FloorPriceUsd float64
	AssetIDs      []string
	NotifyEmail   string
}

func (p *CreateWatchParams) validate() error {
	if strings.TrimSpace(p.Owner) == "" {
		return fmt.Errorf("watch_service: owner is required")
	}
	if strings.TrimSpace(p.Collection) == "" {
		return fmt.Errorf("watch_service: collection is required")
	}
	if p.FloorPriceUsd <= 0 {
		return fmt.Errorf("watch_service: floor price must be positive, got %f", p.FloorPriceUsd)
	}
	return nil
}

// CreateWatch validates the request, resolves the covered asset set, and
// persists the new watch request in pending state.
func (s *WatchService) CreateWatch(ctx context.Context, p CreateWatchParams) (domain.WatchRequest, error) {
	if err := p.validate(); err != nil {
		return domain.WatchRequest{}, err
	}

	collection, err := s.resolveCollection(ctx, p.Collection)
	if err != nil {
		return domain.WatchRequest{}, err
	}

	assetIDs := p.AssetIDs
	if len(assetIDs) == 0 {
		resolved, err := s.tokens.GetUserTokens(ctx, p.Owner, collection)
		if err != nil {
			return domain.WatchRequest{}, fmt.Errorf("watch_service: resolve holdings: %w", err)
		}
		assetIDs = resolved
	}
	if len(assetIDs) == 0 {
		return domain.WatchRequest{}, fmt.Errorf("watch_service: owner %s holds no assets in %s", p.Owner, collection)
	}

	req := domain.WatchRequest{
		ID:            uuid.New().String(),
		Owner:         p.Owner,
		Collection:    collection,
		FloorPriceUsd: p.FloorPriceUsd,
		AssetIDs:      assetIDs,
		NotifyEmail:   p.NotifyEmail,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.Create(ctx, req); err != nil {
		return domain.WatchRequest{}, fmt.Errorf("watch_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "watch request created",
		slog.String("request_id", req.ID),
		slog.String("collection", req.Collection),
		slog.Float64("floor_usd", req.FloorPriceUsd),
		slog.Int("assets", len(req.AssetIDs)),
	)

	if s.audit != nil {
		_ = s.audit.Log(ctx, "watch.created", map[string]any{
			"request_id": req.ID,
			"owner":      req.Owner,
			"collection": req.Collection,
			"floor_usd":  req.FloorPriceUsd,
		})
	}

	return req, nil
}

// resolveCollection normalises the collection argument to a contract address.
// A request naming several matching contracts would be ambiguous, so name
// resolution takes the top search match on the marketplace chain.
func (s *WatchService) resolveCollection(ctx context.Context, collection string) (string, error) {
	if isContractAddress(collection) {
		return collection, nil
	}

	cols, err := s.tokens.SearchCollections(ctx, collection)
	if err != nil {
		return "", fmt.Errorf("watch_service: resolve collection %q: %w", collection, err)
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("watch_service: collection %q: %w", collection, domain.ErrNotFound)
	}

	s.logger.InfoContext(ctx, "collection name resolved",
		slog.String("name", collection),
		slog.String("contract", cols[0].Contract),
	)
	return cols[0].Contract, nil
}

// GetWatch retrieves a watch request by ID.
func (s *WatchService) GetWatch(ctx context.Context, id string) (domain.WatchRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.WatchRequest{}, fmt.Errorf("watch_service: get %s: %w", id, err)
	}
	return req, nil
}

// ListPending returns all watch requests still awaiting a match.
func (s *WatchService) ListPending(ctx context.Context) ([]domain.WatchRequest, error) {
	reqs, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch_service: list pending: %w", err)
	}
	return reqs, nil
}
