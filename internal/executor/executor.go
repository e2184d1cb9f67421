// Package executor routes validated transaction plans to the wallet for the
// target chain and executes them strictly in order.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// StepError reports a settlement step that failed on-chain or was rejected.
// Steps before Step are already broadcast and stay applied: multi-step
// batches are NOT atomic, and the caller decides whether to retry just the
// remaining steps.
type StepError struct {
	Action      string
	Step        int              // zero-based index of the failing plan
	LastReceipt domain.ReceiptID // receipt of the last successful step, if any
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("executor: action %q: step %d failed: %v", e.Action, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Executor dispatches plan batches to per-chain wallets. The chain set is
// closed at construction; routing to an unknown chain fails before anything
// is broadcast.
type Executor struct {
	wallets map[domain.ChainID]domain.Wallet
	logger  *slog.Logger
}

// New creates an Executor over the given wallet routing table.
func New(wallets map[domain.ChainID]domain.Wallet, logger *slog.Logger) *Executor {
	return &Executor{
		wallets: wallets,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Execute hands the plans to the wallet for chain and returns the receipt of
// the final transaction. Plans run in list order with no automatic retry; a
// failure at step k aborts before step k+1 and surfaces a *StepError so the
// caller can see which step failed. Every call may change on-chain state
// even when the overall batch is reported as failed.
func (e *Executor) Execute(ctx context.Context, actionName string, plans []domain.TransactionPlan, chain domain.ChainID) (domain.ReceiptID, error) {
	wallet, ok := e.wallets[chain]
	if !ok {
		return "", fmt.Errorf("executor: action %q: chain %q: %w", actionName, chain, domain.ErrUnsupportedChain)
	}
	if len(plans) == 0 {
		return "", fmt.Errorf("executor: action %q: empty plan batch", actionName)
	}

	log := e.logger.With(
		slog.String("action", actionName),
		slog.String("chain", string(chain)),
		slog.Int("steps", len(plans)),
	)
	log.InfoContext(ctx, "executing plan batch", slog.String("wallet", wallet.Address()))

	txHash, failedStep, err := wallet.SendPlans(ctx, plans)
	if err != nil {
		var last domain.ReceiptID
		if failedStep > 0 && txHash != "" {
			last = domain.ReceiptID(txHash)
		}
		log.ErrorContext(ctx, "plan batch failed",
			slog.Int("failed_step", failedStep),
			slog.String("error", err.Error()),
		)
		return "", &StepError{Action: actionName, Step: failedStep, LastReceipt: last, Err: err}
	}

	log.InfoContext(ctx, "plan batch executed", slog.String("tx_hash", txHash))
	return domain.ReceiptID(txHash), nil
}
