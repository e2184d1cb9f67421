package matcher

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

const validPlans = `[{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0x01"}]`

type fakeStepSource struct {
	steps map[string][]domain.SettlementStep // keyed by order id
	err   error
	calls []string
}

func (f *fakeStepSource) SellSteps(_ context.Context, orderID, _, _ string) ([]domain.SettlementStep, error) {
	f.calls = append(f.calls, orderID)
	if f.err != nil {
		return nil, f.err
	}
	return f.steps[orderID], nil
}

func saleSteps() []domain.SettlementStep {
	return []domain.SettlementStep{{ID: domain.StepSale, Plans: []byte(validPlans)}}
}

func bid(id, maker string, priceUsd float64) domain.Bid {
	return domain.Bid{ID: id, Maker: maker, PriceUsd: priceUsd, AssetID: "0xc0ffee:1"}
}

func newMatcher(src StepSource) *Matcher {
	return New(src, "0xtaker", slog.Default())
}

func TestRankDescendingStable(t *testing.T) {
	ranked := Rank([]domain.Bid{bid("a", "m1", 5), bid("b", "m2", 12), bid("c", "m3", 9)})
	require.Len(t, ranked, 3)
	assert.Equal(t, []float64{12, 9, 5}, []float64{ranked[0].PriceUsd, ranked[1].PriceUsd, ranked[2].PriceUsd})

	// Equal prices keep arrival order.
	ranked = Rank([]domain.Bid{bid("first", "m1", 7), bid("second", "m2", 7)})
	assert.Equal(t, "first", ranked[0].ID)
	assert.Equal(t, "second", ranked[1].ID)
}

func TestMatchPicksFirstBidAboveFloor(t *testing.T) {
	src := &fakeStepSource{steps: map[string][]domain.SettlementStep{"b": saleSteps()}}
	m := newMatcher(src)

	out, err := m.Match(context.Background(), []domain.Bid{
		bid("a", "m1", 5), bid("b", "m2", 12), bid("c", "m3", 9),
	}, 10)
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, "m2", out.Maker)
	assert.InDelta(t, 12, out.AmountUsd, 1e-9)
	require.NotNil(t, out.Plan)
	require.Len(t, out.Plan.Sale, 1)
	assert.Empty(t, out.Plan.Approval, "approval step is optional")

	// Ranked list is always populated.
	require.Len(t, out.RankedBids, 3)
	assert.Equal(t, "b", out.RankedBids[0].ID)
}

func TestMatchNoQualifyingBid(t *testing.T) {
	src := &fakeStepSource{}
	m := newMatcher(src)

	out, err := m.Match(context.Background(), []domain.Bid{
		bid("a", "m1", 5), bid("b", "m2", 8),
	}, 10)
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Nil(t, out.Plan)
	require.Len(t, out.RankedBids, 2)
	assert.InDelta(t, 8, out.RankedBids[0].PriceUsd, 1e-9)
	assert.InDelta(t, 5, out.RankedBids[1].PriceUsd, 1e-9)
	assert.Empty(t, src.calls, "no settlement fetch below the floor")
}

func TestMatchMissingSaleStepIsNonMatch(t *testing.T) {
	src := &fakeStepSource{steps: map[string][]domain.SettlementStep{
		"a": {{ID: domain.StepApproval, Plans: []byte(validPlans)}}, // no sale step
	}}
	m := newMatcher(src)

	out, err := m.Match(context.Background(), []domain.Bid{bid("a", "m1", 15)}, 10)
	require.NoError(t, err, "missing sale step must not be an error")
	assert.False(t, out.Matched)
	require.Len(t, out.RankedBids, 1)
}

func TestMatchSkipsToNextQualifyingBidOnStepFailure(t *testing.T) {
	src := &fakeStepSource{steps: map[string][]domain.SettlementStep{
		// "top" has no steps recorded -> nil response, no sale step.
		"next": {
			{ID: domain.StepApproval, Plans: []byte(validPlans)},
			{ID: domain.StepSale, Plans: []byte(validPlans)},
		},
	}}
	m := newMatcher(src)

	out, err := m.Match(context.Background(), []domain.Bid{
		bid("top", "m1", 20), bid("next", "m2", 15),
	}, 10)
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, "m2", out.Maker)
	require.NotNil(t, out.Plan)
	assert.Len(t, out.Plan.Approval, 1)
	assert.Equal(t, []string{"top", "next"}, src.calls)
}

func TestMatchUpstreamErrorSkipsBid(t *testing.T) {
	src := &fakeStepSource{err: errors.New("boom")}
	m := newMatcher(src)

	out, err := m.Match(context.Background(), []domain.Bid{bid("a", "m1", 15)}, 10)
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestMatchMalformedSalePlanIsError(t *testing.T) {
	src := &fakeStepSource{steps: map[string][]domain.SettlementStep{
		"a": {{ID: domain.StepSale, Plans: []byte(`[{"data":"0x01"}]`)}},
	}}
	m := newMatcher(src)

	_, err := m.Match(context.Background(), []domain.Bid{bid("a", "m1", 15)}, 10)
	require.Error(t, err)
}
