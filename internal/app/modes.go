package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/floorbot/internal/sched"
	"github.com/alanyoungcy/floorbot/internal/server"
	"github.com/alanyoungcy/floorbot/internal/server/handler"
	"github.com/alanyoungcy/floorbot/internal/server/ws"
	"github.com/alanyoungcy/floorbot/internal/settle"
)

// WatchMode runs the settlement loop (and the archive task when enabled)
// without the HTTP API. Watch requests are expected to already exist in the
// store or to be created by another replica running in serve mode.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	scheduler, err := a.buildScheduler(deps)
	if err != nil {
		return err
	}
	return scheduler.Run(ctx)
}

// ServeMode runs the HTTP + WebSocket API without the settlement loop.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the settlement loop and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	scheduler, err := a.buildScheduler(deps)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	a.startServer(ctx, g, deps)
	return g.Wait()
}

// buildScheduler assembles the periodic tasks: the settlement tick and,
// when enabled, the cold-storage archive sweep.
func (a *App) buildScheduler(deps *Dependencies) (*sched.Scheduler, error) {
	scheduler := sched.New(a.logger)

	if a.cfg.Watcher.Enabled {
		if deps.Matcher == nil {
			return nil, fmt.Errorf("app: watcher requires a wallet on the marketplace chain %q", a.cfg.Marketplace.Chain)
		}
		loop := settle.New(settle.Config{
			Store:    deps.WatchStore,
			Audit:    deps.AuditStore,
			Bids:     deps.Marketplace,
			Matcher:  deps.Matcher,
			Executor: deps.Executor,
			Notifier: deps.Notifier,
			Bus:      deps.EventBus,
			Locks:    deps.LockManager,
			Chain:    marketplaceChain(a.cfg),
			LockTTL:  a.cfg.Watcher.LockTTL.Duration,
		}, a.logger)
		scheduler.Add("settlement", a.cfg.Watcher.TickInterval.Duration, loop.Task())
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		archiver := deps.Archiver
		logger := a.logger
		scheduler.Add("archive", a.cfg.Archive.Interval.Duration, func(ctx context.Context) sched.Result {
			cutoff := time.Now().UTC().Add(-retention)
			count, err := archiver.ArchiveSettled(ctx, cutoff)
			if err != nil {
				return sched.Retryable(err)
			}
			if count > 0 {
				logger.InfoContext(ctx, "archived settled watch requests",
					slog.Int64("count", count),
				)
			}
			return sched.OK()
		})
	}

	return scheduler, nil
}

// startServer registers the WebSocket hub and HTTP server goroutines on g.
// It is a no-op when the server is disabled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	hub := ws.NewHub(deps.EventBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, configuredChains(a.cfg)),
		Watches: handler.NewWatchHandler(deps.WatchService, a.logger),
		Trades:  handler.NewTradeHandler(deps.TradeService, a.logger),
		Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
