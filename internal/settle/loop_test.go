package settle

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/matcher"
)

const validSalePlans = `[{"to":"0x2222222222222222222222222222222222222222","data":"0x02","value":"100"}]`

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type matchRecord struct {
	maker   string
	amount  float64
	receipt domain.ReceiptID
}

type fakeStore struct {
	pending         []domain.WatchRequest
	unnotified      []domain.WatchRequest
	matches         map[string]matchRecord
	notified        map[string]bool
	alreadyAccepted bool
	recordErr       error
}

func newFakeStore(pending ...domain.WatchRequest) *fakeStore {
	return &fakeStore{
		pending:  pending,
		matches:  map[string]matchRecord{},
		notified: map[string]bool{},
	}
}

func (s *fakeStore) Create(context.Context, domain.WatchRequest) error { return nil }

func (s *fakeStore) GetByID(_ context.Context, id string) (domain.WatchRequest, error) {
	for _, r := range s.pending {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.WatchRequest{}, domain.ErrNotFound
}

func (s *fakeStore) ListPending(context.Context) ([]domain.WatchRequest, error) {
	return s.pending, nil
}

func (s *fakeStore) RecordMatch(_ context.Context, id, maker string, amountUsd float64, receipt domain.ReceiptID) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	if s.alreadyAccepted {
		return domain.ErrAlreadyAccepted
	}
	s.matches[id] = matchRecord{maker: maker, amount: amountUsd, receipt: receipt}
	return nil
}

func (s *fakeStore) MarkNotified(_ context.Context, id string) error {
	s.notified[id] = true
	return nil
}

func (s *fakeStore) ListUnnotified(context.Context) ([]domain.WatchRequest, error) {
	return s.unnotified, nil
}

func (s *fakeStore) ListSettled(context.Context, time.Time, domain.ListOpts) ([]domain.WatchRequest, error) {
	return nil, nil
}

type fakeBids struct {
	byAsset map[string][]domain.Bid
	err     error
}

func (f *fakeBids) GetBids(_ context.Context, assetID string) ([]domain.Bid, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byAsset[assetID], nil
}

type fakeSteps struct {
	plansByOrder map[string]string // order id -> sale plans JSON
}

func (f *fakeSteps) SellSteps(_ context.Context, orderID, _, _ string) ([]domain.SettlementStep, error) {
	plans, ok := f.plansByOrder[orderID]
	if !ok {
		return nil, domain.ErrUpstream
	}
	return []domain.SettlementStep{{ID: domain.StepSale, Plans: []byte(plans)}}, nil
}

type executedBatch struct {
	action string
	plans  []domain.TransactionPlan
	chain  domain.ChainID
}

type fakeExecutor struct {
	batches    []executedBatch
	failAction string
}

func (f *fakeExecutor) Execute(_ context.Context, actionName string, plans []domain.TransactionPlan, chain domain.ChainID) (domain.ReceiptID, error) {
	if actionName == f.failAction {
		return "", errors.New("execution rejected")
	}
	f.batches = append(f.batches, executedBatch{action: actionName, plans: plans, chain: chain})
	return "0xreceipt", nil
}

type fakeNotifier struct {
	ownerCalls []string
	ownerErr   error
	events     []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) NotifyOwner(_ context.Context, recipient, _, _ string) error {
	if f.ownerErr != nil {
		return f.ownerErr
	}
	f.ownerCalls = append(f.ownerCalls, recipient)
	return nil
}

type fakeLocks struct {
	held     bool
	acquired int
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() {}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newLoop(store *fakeStore, bids *fakeBids, steps *fakeSteps, exec *fakeExecutor, notif *fakeNotifier, locks *fakeLocks) *Loop {
	return New(Config{
		Store:    store,
		Bids:     bids,
		Matcher:  matcher.New(steps, "0xtaker", slog.Default()),
		Executor: exec,
		Notifier: notif,
		Locks:    locks,
		Chain:    domain.ChainApechain,
	}, slog.Default())
}

func watchReq(id string, floor float64, assets ...string) domain.WatchRequest {
	return domain.WatchRequest{
		ID:            id,
		Owner:         "0xowner",
		FloorPriceUsd: floor,
		AssetIDs:      assets,
		NotifyEmail:   "owner@example.com",
		CreatedAt:     time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestTickSettlesQualifyingRequest(t *testing.T) {
	store := newFakeStore(watchReq("req-1", 10, "0xabc:1"))
	bids := &fakeBids{byAsset: map[string][]domain.Bid{
		"0xabc:1": {{ID: "bid-1", Maker: "0xmaker", PriceUsd: 12, AssetID: "0xabc:1"}},
	}}
	steps := &fakeSteps{plansByOrder: map[string]string{"bid-1": validSalePlans}}
	exec := &fakeExecutor{}
	notif := &fakeNotifier{}
	locks := &fakeLocks{}

	loop := newLoop(store, bids, steps, exec, notif, locks)
	require.NoError(t, loop.Tick(context.Background()))

	rec, ok := store.matches["req-1"]
	require.True(t, ok, "match was recorded")
	assert.Equal(t, "0xmaker", rec.maker)
	assert.Equal(t, 12.0, rec.amount)
	assert.Equal(t, domain.ReceiptID("0xreceipt"), rec.receipt)

	require.Len(t, exec.batches, 1)
	assert.Equal(t, "accept-offer", exec.batches[0].action)
	assert.Equal(t, domain.ChainApechain, exec.batches[0].chain)

	assert.Equal(t, []string{"owner@example.com"}, notif.ownerCalls)
	assert.True(t, store.notified["req-1"])
}

func TestTickSkipsWhenLockHeld(t *testing.T) {
	store := newFakeStore(watchReq("req-1", 10, "0xabc:1"))
	loop := newLoop(store, &fakeBids{}, &fakeSteps{}, &fakeExecutor{}, &fakeNotifier{}, &fakeLocks{held: true})

	require.NoError(t, loop.Tick(context.Background()))
	assert.Empty(t, store.matches)
}

func TestBelowFloorLeavesRequestPending(t *testing.T) {
	store := newFakeStore(watchReq("req-1", 20, "0xabc:1"))
	bids := &fakeBids{byAsset: map[string][]domain.Bid{
		"0xabc:1": {{ID: "bid-1", Maker: "0xmaker", PriceUsd: 12, AssetID: "0xabc:1"}},
	}}
	steps := &fakeSteps{plansByOrder: map[string]string{"bid-1": validSalePlans}}
	exec := &fakeExecutor{}

	loop := newLoop(store, bids, steps, exec, &fakeNotifier{}, &fakeLocks{})
	require.NoError(t, loop.Tick(context.Background()))

	assert.Empty(t, store.matches)
	assert.Empty(t, exec.batches, "nothing executed for a below-floor bid")
}

func TestPerRequestIsolation(t *testing.T) {
	// req-1's sale plans are malformed so its match attempt errors; req-2
	// must still settle in the same tick.
	store := newFakeStore(
		watchReq("req-1", 10, "0xabc:1"),
		watchReq("req-2", 10, "0xabc:2"),
	)
	bids := &fakeBids{byAsset: map[string][]domain.Bid{
		"0xabc:1": {{ID: "bid-bad", Maker: "0xm1", PriceUsd: 15, AssetID: "0xabc:1"}},
		"0xabc:2": {{ID: "bid-ok", Maker: "0xm2", PriceUsd: 11, AssetID: "0xabc:2"}},
	}}
	steps := &fakeSteps{plansByOrder: map[string]string{
		"bid-bad": `[{"to":"not-an-address","data":"0x02"}]`,
		"bid-ok":  validSalePlans,
	}}

	loop := newLoop(store, bids, steps, &fakeExecutor{}, &fakeNotifier{}, &fakeLocks{})
	require.NoError(t, loop.Tick(context.Background()))

	assert.NotContains(t, store.matches, "req-1")
	assert.Contains(t, store.matches, "req-2")
}

func TestAlreadyAcceptedIsNoOp(t *testing.T) {
	store := newFakeStore(watchReq("req-1", 10, "0xabc:1"))
	store.alreadyAccepted = true
	bids := &fakeBids{byAsset: map[string][]domain.Bid{
		"0xabc:1": {{ID: "bid-1", Maker: "0xmaker", PriceUsd: 12, AssetID: "0xabc:1"}},
	}}
	steps := &fakeSteps{plansByOrder: map[string]string{"bid-1": validSalePlans}}
	notif := &fakeNotifier{}

	loop := newLoop(store, bids, steps, &fakeExecutor{}, notif, &fakeLocks{})
	require.NoError(t, loop.Tick(context.Background()))

	assert.Empty(t, notif.ownerCalls, "no notification for a request settled elsewhere")
	assert.Empty(t, store.notified)
}

func TestApprovalFailureAbortsSale(t *testing.T) {
	store := newFakeStore(watchReq("req-1", 10, "0xabc:1"))
	bids := &fakeBids{byAsset: map[string][]domain.Bid{
		"0xabc:1": {{ID: "bid-1", Maker: "0xmaker", PriceUsd: 12, AssetID: "0xabc:1"}},
	}}
	steps := &approvalSteps{}
	exec := &fakeExecutor{failAction: "accept-offer-approval"}

	loop := newLoop(store, bids, nil, exec, &fakeNotifier{}, &fakeLocks{})
	loop.matcher = matcher.New(steps, "0xtaker", slog.Default())

	require.NoError(t, loop.Tick(context.Background()), "per-request failure is contained")
	assert.Empty(t, exec.batches, "sale never ran after the approval failed")
	assert.Empty(t, store.matches)
}

// approvalSteps returns both an approval and a sale step.
type approvalSteps struct{}

func (approvalSteps) SellSteps(context.Context, string, string, string) ([]domain.SettlementStep, error) {
	return []domain.SettlementStep{
		{ID: domain.StepApproval, Plans: []byte(`[{"to":"0x1111111111111111111111111111111111111111","data":"0x01"}]`)},
		{ID: domain.StepSale, Plans: []byte(validSalePlans)},
	}, nil
}

func TestNotificationRetrySweep(t *testing.T) {
	settled := watchReq("req-9", 10, "0xabc:9")
	settled.IsOfferAccepted = true
	settled.MatchedMaker = "0xmaker"
	settled.MatchedAmount = 14
	settled.Receipt = "0xreceipt"

	store := newFakeStore()
	store.unnotified = []domain.WatchRequest{settled}
	notif := &fakeNotifier{}

	loop := newLoop(store, &fakeBids{}, &fakeSteps{}, &fakeExecutor{}, notif, &fakeLocks{})
	require.NoError(t, loop.Tick(context.Background()))

	assert.Equal(t, []string{"owner@example.com"}, notif.ownerCalls)
	assert.True(t, store.notified["req-9"])
}

func TestOwnerNotifyFailureLeavesUnnotified(t *testing.T) {
	settled := watchReq("req-9", 10, "0xabc:9")
	settled.IsOfferAccepted = true

	store := newFakeStore()
	store.unnotified = []domain.WatchRequest{settled}
	notif := &fakeNotifier{ownerErr: errors.New("smtp down")}

	loop := newLoop(store, &fakeBids{}, &fakeSteps{}, &fakeExecutor{}, notif, &fakeLocks{})
	require.NoError(t, loop.Tick(context.Background()))

	assert.Empty(t, store.notified, "request stays unnotified for the next sweep")
}

func TestBidFetchFailureDegradesToBidless(t *testing.T) {
	store := newFakeStore(watchReq("req-1", 10, "0xabc:1"))
	bids := &fakeBids{err: domain.ErrUpstream}
	exec := &fakeExecutor{}

	loop := newLoop(store, bids, &fakeSteps{}, exec, &fakeNotifier{}, &fakeLocks{})
	require.NoError(t, loop.Tick(context.Background()))

	assert.Empty(t, store.matches)
	assert.Empty(t, exec.batches)
}
