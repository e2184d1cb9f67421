package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/platform/coingecko"
	"github.com/alanyoungcy/floorbot/internal/platform/magiceden"
	"github.com/alanyoungcy/floorbot/internal/selector"
	"github.com/alanyoungcy/floorbot/internal/txplan"
)

// nativeAssetID is the oracle id used to price offers in wrapped native.
const nativeAssetID = "apecoin"

// rateMaxAge bounds how stale a cached oracle rate may be before the oracle
// is consulted again.
const rateMaxAge = 5 * time.Minute

// Marketplace is the slice of the marketplace client the trade service uses.
type Marketplace interface {
	SearchCollections(ctx context.Context, name string) ([]domain.Collection, error)
	GetListings(ctx context.Context, collection string, limit int, filter domain.ListingFilter) ([]domain.Listing, error)
	BuySteps(ctx context.Context, orderIDs []string, taker string) ([]domain.SettlementStep, error)
	BidSteps(ctx context.Context, p magiceden.BidParams) (magiceden.BidFlow, error)
	SubmitOrder(ctx context.Context, endpoint string, body json.RawMessage, signature string) error
}

// Oracle supplies USD prices for native tokens.
type Oracle interface {
	GetUSDPrice(ctx context.Context, assetID string) (float64, error)
}

// PlanExecutor runs a validated plan batch on a chain.
type PlanExecutor interface {
	Execute(ctx context.Context, actionName string, plans []domain.TransactionPlan, chain domain.ChainID) (domain.ReceiptID, error)
}

// TradeService implements listing search, budgeted floor buying, and offer
// placement.
type TradeService struct {
	market   Marketplace
	oracle   Oracle
	executor PlanExecutor
	wallets  map[domain.ChainID]domain.Wallet
	listings domain.ListingCache // may be nil
	rates    domain.RateCache    // may be nil
	logger   *slog.Logger
}

// NewTradeService creates a TradeService. The caches may be nil, in which
// case every call goes straight to the upstreams.
func NewTradeService(
	market Marketplace,
	oracle Oracle,
	executor PlanExecutor,
	wallets map[domain.ChainID]domain.Wallet,
	listings domain.ListingCache,
	rates domain.RateCache,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		market:   market,
		oracle:   oracle,
		executor: executor,
		wallets:  wallets,
		listings: listings,
		rates:    rates,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// SearchCollections resolves a collection name to the contracts trading on
// the marketplace chain.
func (s *TradeService) SearchCollections(ctx context.Context, name string) ([]domain.Collection, error) {
	cols, err := s.market.SearchCollections(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("trade_service: search collections %q: %w", name, err)
	}
	return cols, nil
}

// SearchListings returns a collection's listings ascending by USD price.
// The collection may be a contract address or a human name; names are
// resolved through the marketplace search and may span several contracts.
// Unfiltered single-contract searches are served from the cache when a fresh
// snapshot exists.
func (s *TradeService) SearchListings(ctx context.Context, collection string, limit int, filter domain.ListingFilter) ([]domain.Listing, error) {
	contracts, err := s.resolveContracts(ctx, collection)
	if err != nil {
		return nil, err
	}

	cacheable := filter.IsZero() && len(contracts) == 1 && s.listings != nil
	if cacheable {
		cached, err := s.listings.GetListings(ctx, contracts[0])
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "listing cache read failed",
				slog.String("collection", contracts[0]),
				slog.String("error", err.Error()),
			)
		}
	}

	var listings []domain.Listing
	for _, contract := range contracts {
		batch, err := s.market.GetListings(ctx, contract, limit, filter)
		if err != nil {
			return nil, fmt.Errorf("trade_service: search listings %s: %w", contract, err)
		}
		listings = append(listings, batch...)
	}
	domain.SortListingsByPrice(listings)

	if cacheable {
		if err := s.listings.SetListings(ctx, contracts[0], listings); err != nil {
			s.logger.WarnContext(ctx, "listing cache write failed",
				slog.String("collection", contracts[0]),
				slog.String("error", err.Error()),
			)
		}
	}
	return listings, nil
}

// resolveContracts maps a collection argument to contract addresses. Contract
// addresses pass through untouched; anything else is treated as a name and
// resolved through the marketplace search.
func (s *TradeService) resolveContracts(ctx context.Context, collection string) ([]string, error) {
	if isContractAddress(collection) {
		return []string{collection}, nil
	}

	cols, err := s.market.SearchCollections(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("trade_service: resolve collection %q: %w", collection, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("trade_service: collection %q: %w", collection, domain.ErrNotFound)
	}

	contracts := make([]string, 0, len(cols))
	for _, c := range cols {
		contracts = append(contracts, c.Contract)
	}
	return contracts, nil
}

// BuyParams describes a budgeted floor sweep. Filter narrows the sweep to a
// single token or to tokens with the given trait values.
type BuyParams struct {
	Collection string
	BudgetUsd  float64
	Chain      domain.ChainID
	Filter     domain.ListingFilter
}

// BuyResult reports what a floor sweep bought. Purchased is empty when
// nothing fit the budget; Receipt is set only after on-chain execution.
type BuyResult struct {
	Purchased []domain.Listing
	TotalUsd  float64
	Receipt   domain.ReceiptID
}

// BuyFloor buys the cheapest listings of a collection that fit the budget.
// Selection walks the price-sorted listings greedily and stops at the first
// listing that would overrun the budget or has no executable order.
func (s *TradeService) BuyFloor(ctx context.Context, p BuyParams) (BuyResult, error) {
	if p.BudgetUsd <= 0 {
		return BuyResult{}, fmt.Errorf("trade_service: budget must be positive, got %f", p.BudgetUsd)
	}
	wallet, ok := s.wallets[p.Chain]
	if !ok {
		return BuyResult{}, fmt.Errorf("trade_service: chain %q: %w", p.Chain, domain.ErrUnsupportedChain)
	}

	listings, err := s.SearchListings(ctx, p.Collection, 50, p.Filter)
	if err != nil {
		return BuyResult{}, err
	}

	sel := selector.Select(listings, p.BudgetUsd)
	if len(sel.Listings) == 0 {
		s.logger.InfoContext(ctx, "nothing purchasable within budget",
			slog.String("collection", p.Collection),
			slog.Float64("budget_usd", p.BudgetUsd),
		)
		return BuyResult{}, nil
	}

	steps, err := s.market.BuySteps(ctx, sel.OrderIDs, wallet.Address())
	if err != nil {
		return BuyResult{}, fmt.Errorf("trade_service: buy steps: %w", err)
	}

	var receipt domain.ReceiptID
	for _, step := range steps {
		plans, err := txplan.Validate(step.Plans)
		if err != nil {
			return BuyResult{}, fmt.Errorf("trade_service: step %s: %w", step.ID, err)
		}
		if len(plans) == 0 {
			continue
		}
		receipt, err = s.executor.Execute(ctx, "buy-"+step.ID, plans, p.Chain)
		if err != nil {
			return BuyResult{}, fmt.Errorf("trade_service: execute step %s: %w", step.ID, err)
		}
	}

	s.logger.InfoContext(ctx, "floor sweep complete",
		slog.String("collection", p.Collection),
		slog.Int("count", len(sel.Listings)),
		slog.Float64("total_usd", sel.TotalUsd),
		slog.String("receipt", string(receipt)),
	)

	return BuyResult{
		Purchased: sel.Listings,
		TotalUsd:  sel.TotalUsd,
		Receipt:   receipt,
	}, nil
}

// OfferParams describes an offer on a single asset. Offers always settle on
// apechain in wrapped native.
type OfferParams struct {
	AssetID        string
	AmountUsd      float64
	ExpirationTime int64 // Unix seconds; zero for marketplace default
}

// OfferResult reports a placed offer.
type OfferResult struct {
	AssetID   string
	AmountUsd float64
	WeiPrice  string
}

// PlaceOffer converts the USD amount to wrapped-native wei at the oracle
// rate, runs any required currency approval, signs the order, and submits it
// to the marketplace order book.
func (s *TradeService) PlaceOffer(ctx context.Context, p OfferParams) (OfferResult, error) {
	if p.AmountUsd <= 0 {
		return OfferResult{}, fmt.Errorf("trade_service: offer amount must be positive, got %f", p.AmountUsd)
	}
	wallet, ok := s.wallets[domain.ChainApechain]
	if !ok {
		return OfferResult{}, fmt.Errorf("trade_service: no apechain wallet: %w", domain.ErrUnsupportedChain)
	}

	rate, err := s.usdRate(ctx)
	if err != nil {
		return OfferResult{}, err
	}
	wei, err := coingecko.UsdToWei(p.AmountUsd, rate)
	if err != nil {
		return OfferResult{}, fmt.Errorf("trade_service: %w", err)
	}

	flow, err := s.market.BidSteps(ctx, magiceden.BidParams{
		Maker:          wallet.Address(),
		Token:          p.AssetID,
		WeiPrice:       wei.String(),
		ExpirationTime: p.ExpirationTime,
	})
	if err != nil {
		return OfferResult{}, fmt.Errorf("trade_service: bid steps: %w", err)
	}

	if len(flow.ApprovalPlans) > 0 {
		plans, err := txplan.Validate(flow.ApprovalPlans)
		if err != nil {
			return OfferResult{}, fmt.Errorf("trade_service: currency approval: %w", err)
		}
		if len(plans) > 0 {
			if _, err := s.executor.Execute(ctx, "offer-approval", plans, domain.ChainApechain); err != nil {
				return OfferResult{}, fmt.Errorf("trade_service: currency approval: %w", err)
			}
		}
	}

	var typed apitypes.TypedData
	if err := json.Unmarshal(flow.TypedData, &typed); err != nil {
		return OfferResult{}, fmt.Errorf("trade_service: decode typed data: %w", err)
	}
	signature, err := wallet.SignTypedData(ctx, typed)
	if err != nil {
		return OfferResult{}, fmt.Errorf("trade_service: sign order: %w", err)
	}

	if err := s.market.SubmitOrder(ctx, flow.PostEndpoint, flow.PostBody, signature); err != nil {
		return OfferResult{}, fmt.Errorf("trade_service: submit order: %w", err)
	}

	s.logger.InfoContext(ctx, "offer placed",
		slog.String("asset", p.AssetID),
		slog.Float64("amount_usd", p.AmountUsd),
		slog.String("wei_price", wei.String()),
	)

	return OfferResult{
		AssetID:   p.AssetID,
		AmountUsd: p.AmountUsd,
		WeiPrice:  wei.String(),
	}, nil
}

// isContractAddress reports whether s is a 0x-prefixed EVM address.
func isContractAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// usdRate returns the native token's USD price, preferring a fresh cached
// rate and falling back to the oracle.
func (s *TradeService) usdRate(ctx context.Context) (float64, error) {
	if s.rates != nil {
		rate, ts, err := s.rates.GetRate(ctx, nativeAssetID)
		if err == nil && time.Since(ts) < rateMaxAge {
			return rate, nil
		}
	}

	rate, err := s.oracle.GetUSDPrice(ctx, nativeAssetID)
	if err != nil {
		return 0, fmt.Errorf("trade_service: oracle rate: %w", err)
	}

	if s.rates != nil {
		if err := s.rates.SetRate(ctx, nativeAssetID, rate, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "rate cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return rate, nil
}
