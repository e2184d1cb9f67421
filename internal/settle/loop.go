// Package settle drives pending watch requests to completion: on each tick
// it gathers bids, matches them against each request's floor, executes the
// winning settlement on-chain, records the match, and notifies the owner.
package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/matcher"
	"github.com/alanyoungcy/floorbot/internal/sched"
)

// tickLockKey guards the whole tick so replicas never settle concurrently.
const tickLockKey = "settle-tick"

// EventChannel is the bus channel settlement events are published on.
const EventChannel = "events:settlement"

// BidSource supplies the current bids on an asset.
type BidSource interface {
	GetBids(ctx context.Context, assetID string) ([]domain.Bid, error)
}

// PlanExecutor runs a validated plan batch on a chain.
type PlanExecutor interface {
	Execute(ctx context.Context, actionName string, plans []domain.TransactionPlan, chain domain.ChainID) (domain.ReceiptID, error)
}

// Notifier delivers settlement alerts to operators and request owners.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
	NotifyOwner(ctx context.Context, recipient, subject, body string) error
}

// Event is the payload published on the event bus when a request settles.
type Event struct {
	RequestID string           `json:"request_id"`
	Owner     string           `json:"owner"`
	Maker     string           `json:"maker"`
	AmountUsd float64          `json:"amount_usd"`
	Receipt   domain.ReceiptID `json:"receipt"`
	At        time.Time        `json:"at"`
}

// Loop is the settlement worker. One Tick examines every pending request in
// isolation: a failure on one request never blocks the rest.
type Loop struct {
	store    domain.WatchStore
	audit    domain.AuditStore
	bids     BidSource
	matcher  *matcher.Matcher
	executor PlanExecutor
	notifier Notifier
	bus      domain.EventBus // may be nil
	locks    domain.LockManager
	chain    domain.ChainID
	lockTTL  time.Duration
	logger   *slog.Logger
}

// Config wires a Loop.
type Config struct {
	Store    domain.WatchStore
	Audit    domain.AuditStore
	Bids     BidSource
	Matcher  *matcher.Matcher
	Executor PlanExecutor
	Notifier Notifier
	Bus      domain.EventBus
	Locks    domain.LockManager
	Chain    domain.ChainID
	LockTTL  time.Duration
}

// New creates a settlement Loop.
func New(cfg Config, logger *slog.Logger) *Loop {
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Loop{
		store:    cfg.Store,
		audit:    cfg.Audit,
		bids:     cfg.Bids,
		matcher:  cfg.Matcher,
		executor: cfg.Executor,
		notifier: cfg.Notifier,
		bus:      cfg.Bus,
		locks:    cfg.Locks,
		chain:    cfg.Chain,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "settle")),
	}
}

// Task adapts the loop for the scheduler.
func (l *Loop) Task() sched.Task {
	return func(ctx context.Context) sched.Result {
		if err := l.Tick(ctx); err != nil {
			return sched.Retryable(err)
		}
		return sched.OK()
	}
}

// Tick runs one settlement pass under the distributed tick lock. A held lock
// means another replica is already working and is not an error.
func (l *Loop) Tick(ctx context.Context) error {
	unlock, err := l.locks.Acquire(ctx, tickLockKey, l.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			l.logger.DebugContext(ctx, "tick lock held elsewhere, skipping")
			return nil
		}
		return fmt.Errorf("settle: acquire tick lock: %w", err)
	}
	defer unlock()

	pending, err := l.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("settle: list pending: %w", err)
	}

	for i := range pending {
		req := &pending[i]
		if err := l.settleOne(ctx, req); err != nil {
			l.logger.ErrorContext(ctx, "settlement attempt failed",
				slog.String("request_id", req.ID),
				slog.String("error", err.Error()),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	// Retry owner notifications for requests that settled earlier but whose
	// dispatch failed.
	unnotified, err := l.store.ListUnnotified(ctx)
	if err != nil {
		return fmt.Errorf("settle: list unnotified: %w", err)
	}
	for i := range unnotified {
		l.notifySettled(ctx, &unnotified[i])
	}

	return nil
}

// settleOne attempts to settle a single request. A non-match leaves the
// request pending without error.
func (l *Loop) settleOne(ctx context.Context, req *domain.WatchRequest) error {
	log := l.logger.With(slog.String("request_id", req.ID))

	bids := l.collectBids(ctx, req, log)
	if len(bids) == 0 {
		return nil
	}

	outcome, err := l.matcher.Match(ctx, bids, req.FloorPriceUsd)
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}
	if !outcome.Matched {
		if len(outcome.RankedBids) > 0 {
			best := outcome.RankedBids[0]
			log.DebugContext(ctx, "no qualifying bid",
				slog.Float64("floor_usd", req.FloorPriceUsd),
				slog.Float64("best_usd", best.PriceUsd),
			)
		}
		return nil
	}

	receipt, err := l.execute(ctx, req, outcome.Plan)
	if err != nil {
		return err
	}

	err = l.store.RecordMatch(ctx, req.ID, outcome.Maker, outcome.AmountUsd, receipt)
	if errors.Is(err, domain.ErrAlreadyAccepted) {
		// Another path already recorded this request; nothing further to do.
		log.WarnContext(ctx, "request was already accepted, skipping record")
		return nil
	}
	if err != nil {
		// The chain state moved but the record did not. Surface loudly so an
		// operator reconciles; the guard on RecordMatch keeps a later retry
		// from double-recording.
		log.ErrorContext(ctx, "match executed but not recorded",
			slog.String("receipt", string(receipt)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("record match: %w", err)
	}

	log.InfoContext(ctx, "watch request settled",
		slog.String("maker", outcome.Maker),
		slog.Float64("amount_usd", outcome.AmountUsd),
		slog.String("receipt", string(receipt)),
	)

	if l.audit != nil {
		_ = l.audit.Log(ctx, "watch.settled", map[string]any{
			"request_id": req.ID,
			"maker":      outcome.Maker,
			"amount_usd": outcome.AmountUsd,
			"receipt":    string(receipt),
		})
	}

	l.publish(ctx, Event{
		RequestID: req.ID,
		Owner:     req.Owner,
		Maker:     outcome.Maker,
		AmountUsd: outcome.AmountUsd,
		Receipt:   receipt,
		At:        time.Now().UTC(),
	})

	settled := *req
	settled.IsOfferAccepted = true
	settled.MatchedMaker = outcome.Maker
	settled.MatchedAmount = outcome.AmountUsd
	settled.Receipt = receipt
	l.notifySettled(ctx, &settled)

	return nil
}

// collectBids gathers bids across the request's assets. Upstream failures on
// one asset degrade to an empty result for that asset.
func (l *Loop) collectBids(ctx context.Context, req *domain.WatchRequest, log *slog.Logger) []domain.Bid {
	var bids []domain.Bid
	for _, assetID := range req.AssetIDs {
		assetBids, err := l.bids.GetBids(ctx, assetID)
		if err != nil {
			log.WarnContext(ctx, "bid fetch failed, treating asset as bidless",
				slog.String("asset", assetID),
				slog.String("error", err.Error()),
			)
			continue
		}
		bids = append(bids, assetBids...)
	}
	return bids
}

// execute runs the approval batch (when present) followed by the sale batch.
// Approval failure aborts before the sale is attempted.
func (l *Loop) execute(ctx context.Context, req *domain.WatchRequest, plan *domain.SettlementPlan) (domain.ReceiptID, error) {
	if len(plan.Approval) > 0 {
		if _, err := l.executor.Execute(ctx, "accept-offer-approval", plan.Approval, l.chain); err != nil {
			return "", fmt.Errorf("approval: %w", err)
		}
	}

	receipt, err := l.executor.Execute(ctx, "accept-offer", plan.Sale, l.chain)
	if err != nil {
		return "", fmt.Errorf("sale: %w", err)
	}
	return receipt, nil
}

// notifySettled delivers owner and operator notices and marks the request
// notified only after the owner dispatch succeeds. Failures leave the
// request for the next tick's retry sweep.
func (l *Loop) notifySettled(ctx context.Context, req *domain.WatchRequest) {
	log := l.logger.With(slog.String("request_id", req.ID))

	subject := "Your offer was accepted"
	body := fmt.Sprintf(
		"Watch request %s settled: accepted a bid from %s for $%.2f. Receipt: %s",
		req.ID, req.MatchedMaker, req.MatchedAmount, req.Receipt,
	)

	if err := l.notifier.NotifyOwner(ctx, req.NotifyEmail, subject, body); err != nil {
		log.WarnContext(ctx, "owner notification failed, will retry",
			slog.String("error", err.Error()),
		)
		return
	}

	// Operator channels are best effort and never block the state machine.
	if err := l.notifier.Notify(ctx, "settlement", subject, body); err != nil {
		log.WarnContext(ctx, "operator notification failed",
			slog.String("error", err.Error()),
		)
	}

	if err := l.store.MarkNotified(ctx, req.ID); err != nil {
		log.ErrorContext(ctx, "mark notified failed",
			slog.String("error", err.Error()),
		)
	}
}

// publish emits a settlement event on the bus, best effort.
func (l *Loop) publish(ctx context.Context, ev Event) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, EventChannel, payload); err != nil {
		l.logger.WarnContext(ctx, "event publish failed",
			slog.String("request_id", ev.RequestID),
			slog.String("error", err.Error()),
		)
	}
}
