// Package sched runs named periodic tasks on independent tickers. Each task
// reports whether its failure is worth retrying on the next tick or should
// bring the process down.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status classifies a task run.
type Status int

const (
	// StatusOK means the run completed.
	StatusOK Status = iota
	// StatusRetryable means the run failed but the next tick should proceed.
	StatusRetryable
	// StatusFatal means the scheduler should stop all tasks and return.
	StatusFatal
)

// Result is the outcome of one task run.
type Result struct {
	Status Status
	Err    error
}

// OK reports a successful run.
func OK() Result { return Result{Status: StatusOK} }

// Retryable reports a failure that the next tick may recover from.
func Retryable(err error) Result { return Result{Status: StatusRetryable, Err: err} }

// Fatal reports a failure that must stop the scheduler.
func Fatal(err error) Result { return Result{Status: StatusFatal, Err: err} }

// Task is one unit of periodic work. Runs of the same task never overlap:
// the ticker loop runs the task synchronously, and ticks that arrive while a
// run is in flight are dropped.
type Task func(ctx context.Context) Result

type entry struct {
	name     string
	interval time.Duration
	task     Task
}

// Scheduler owns a set of periodic tasks and runs them until the context is
// cancelled or a task reports a fatal failure.
type Scheduler struct {
	entries []entry
	logger  *slog.Logger
}

// New creates an empty Scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With(slog.String("component", "sched")),
	}
}

// Add registers a task. Add must not be called after Run.
func (s *Scheduler) Add(name string, interval time.Duration, task Task) {
	s.entries = append(s.entries, entry{name: name, interval: interval, task: task})
}

// Run executes every registered task on its own ticker. Each task runs once
// immediately, then on each tick. Run returns when the context is cancelled
// (nil) or when any task reports a fatal failure (that failure).
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.entries) == 0 {
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, e := range s.entries {
		e := e
		g.Go(func() error {
			err := s.runLoop(ctx, e)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("sched: task %s: %w", e.name, err)
		})
	}

	return g.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, e entry) error {
	log := s.logger.With(slog.String("task", e.name))
	log.InfoContext(ctx, "task loop starting", slog.Duration("interval", e.interval))

	if err := s.runOnce(ctx, e, log); err != nil {
		return err
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "task loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runOnce(ctx, e, log); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, e entry, log *slog.Logger) error {
	started := time.Now()
	res := e.task(ctx)
	elapsed := time.Since(started)

	switch res.Status {
	case StatusFatal:
		log.ErrorContext(ctx, "task failed fatally",
			slog.Duration("elapsed", elapsed),
			slog.String("error", res.Err.Error()),
		)
		return res.Err
	case StatusRetryable:
		log.WarnContext(ctx, "task failed, will retry next tick",
			slog.Duration("elapsed", elapsed),
			slog.String("error", res.Err.Error()),
		)
	default:
		log.DebugContext(ctx, "task run complete", slog.Duration("elapsed", elapsed))
	}
	return nil
}
