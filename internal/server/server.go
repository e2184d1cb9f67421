// Package server exposes the HTTP + WebSocket API over the watch, trade, and
// audit services.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/server/handler"
	"github.com/alanyoungcy/floorbot/internal/server/middleware"
	"github.com/alanyoungcy/floorbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per window per client; 0 disables limiting
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archive may be nil when cold storage is not configured.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Watches *handler.WatchHandler
	Trades  *handler.TradeHandler
	Audit   *handler.AuditHandler
	Archive *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API server for the floor bot.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. The limiter may be nil to disable API rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and status (no auth required beyond the global chain).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Watch request endpoints.
	mux.HandleFunc("POST /api/watch", handlers.Watches.CreateWatch)
	mux.HandleFunc("GET /api/watch", handlers.Watches.ListWatches)
	mux.HandleFunc("GET /api/watch/{id}", handlers.Watches.GetWatch)

	// Listing and trade endpoints.
	mux.HandleFunc("GET /api/collections", handlers.Trades.SearchCollections)
	mux.HandleFunc("GET /api/listings", handlers.Trades.SearchListings)
	mux.HandleFunc("POST /api/buy", handlers.Trades.BuyFloor)
	mux.HandleFunc("POST /api/offers", handlers.Trades.PlaceOffer)

	// Audit log endpoint.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)

	// Cold-storage export endpoints, present only when archiving is enabled.
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive", handlers.Archive.ListExports)
		mux.HandleFunc("GET /api/archive/{key...}", handlers.Archive.GetExport)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
