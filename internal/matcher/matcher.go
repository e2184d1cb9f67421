// Package matcher ranks competing bids against a floor price and prepares
// the settlement steps the winning bid requires.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/txplan"
)

// StepSource fetches the settlement steps required to accept a bid. It is
// implemented by the marketplace client.
type StepSource interface {
	SellSteps(ctx context.Context, orderID, assetID, taker string) ([]domain.SettlementStep, error)
}

// Matcher selects the best-qualifying bid for a floor price and validates
// the transaction plans its settlement requires.
type Matcher struct {
	source StepSource
	taker  string // address accepting the bid
	logger *slog.Logger
}

// New creates a Matcher that settles on behalf of the taker address.
func New(source StepSource, taker string, logger *slog.Logger) *Matcher {
	return &Matcher{
		source: source,
		taker:  taker,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Rank orders bids by USD price descending; equal prices keep arrival order.
func Rank(bids []domain.Bid) []domain.Bid {
	ranked := make([]domain.Bid, len(bids))
	copy(ranked, bids)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PriceUsd > ranked[j].PriceUsd
	})
	return ranked
}

// Match scans the ranked bids from the top and settles on the first bid at
// or above floorPriceUsd. The scan runs over the bid list as a whole, not
// per asset: when a request spans several assets, any one qualifying bid
// resolves the whole request.
//
// A bid whose settlement response lacks a sale step is skipped rather than
// treated as an error; if no qualifying bid can be settled the outcome is
// Matched=false with RankedBids populated so callers can surface the best
// available alternatives. Upstream step-fetch failures skip the bid the same
// way. A sale step that fails plan validation is an error: malformed
// transaction data must never degrade into a silent non-match.
func (m *Matcher) Match(ctx context.Context, bids []domain.Bid, floorPriceUsd float64) (domain.SettlementOutcome, error) {
	ranked := Rank(bids)
	outcome := domain.SettlementOutcome{RankedBids: ranked}

	for _, bid := range ranked {
		if bid.PriceUsd < floorPriceUsd {
			// Ranked descending: nothing below this can qualify.
			break
		}

		log := m.logger.With(
			slog.String("bid_id", bid.ID),
			slog.String("asset", bid.AssetID),
			slog.Float64("price_usd", bid.PriceUsd),
		)

		steps, err := m.source.SellSteps(ctx, bid.ID, bid.AssetID, m.taker)
		if err != nil {
			log.WarnContext(ctx, "settlement steps unavailable, skipping bid",
				slog.String("error", err.Error()),
			)
			continue
		}

		plan, err := buildPlan(steps)
		if err != nil {
			return outcome, fmt.Errorf("matcher: bid %s: %w", bid.ID, err)
		}
		if plan == nil {
			log.WarnContext(ctx, "no sale step in settlement response, skipping bid")
			continue
		}

		outcome.Matched = true
		outcome.Maker = bid.Maker
		outcome.AmountUsd = bid.PriceUsd
		outcome.Plan = plan
		return outcome, nil
	}

	return outcome, nil
}

// buildPlan validates the step payloads. It returns nil (no error) when the
// mandatory sale step is absent; an absent approval step is normal.
func buildPlan(steps []domain.SettlementStep) (*domain.SettlementPlan, error) {
	plan := &domain.SettlementPlan{}
	saleFound := false
	for _, step := range steps {
		switch step.ID {
		case domain.StepSale:
			plans, err := txplan.Validate(step.Plans)
			if err != nil {
				return nil, fmt.Errorf("sale step: %w", err)
			}
			plan.Sale = plans
			saleFound = true
		case domain.StepApproval:
			plans, err := txplan.Validate(step.Plans)
			if err != nil {
				return nil, fmt.Errorf("approval step: %w", err)
			}
			plan.Approval = plans
		}
	}
	if !saleFound {
		return nil, nil
	}
	return plan, nil
}
