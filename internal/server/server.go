// Package server provides HTTP server initialization and lifecycle management
// for the Memora API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/memora/internal/config"
	"github.com/scrypster/memora/internal/notify"
	"github.com/scrypster/memora/web/handlers"
)

// Engine is the memory engine as the server uses it.
type Engine interface {
	handlers.MemoryService
	SetOnJobComplete(callback func(agentID string))
}

// NewHandler builds the full HTTP handler: API routes behind auth, the
// stats stream, and the health probe, wrapped in rate limiting, security
// headers and request logging. hub may be nil to disable the stream.
func NewHandler(cfg *config.Config, eng Engine, hub *handlers.WebSocketHub, logger *log.Logger) http.Handler {
	apiMux := http.NewServeMux()
	handlers.NewAPIHandlers(eng, logger).Register(apiMux)

	mux := http.NewServeMux()
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// Health endpoint: no auth, used by monitoring.
	mux.HandleFunc("GET /health", handlers.Health)

	// Browsers cannot set headers on websocket requests; origin
	// validation guards the stream instead of auth.
	if hub != nil {
		mux.Handle("GET /ws/stats", hub)
	}

	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.SecurityHeaders(handler)
	return handlers.RequestLogger(handler, logger.With("component", "http"))
}

// Start listens on the configured address and serves until ctx is done.
// It returns the actual address being listened on (useful for testing with
// port 0) and a channel that receives the serve error, or nil after a clean
// shutdown.
func Start(ctx context.Context, cfg *config.Config, eng Engine, logger *log.Logger) (string, <-chan error, error) {
	var hub *handlers.WebSocketHub
	if cfg.Server.EnableStream {
		origin := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		hub = handlers.NewWebSocketHub(eng, logger, origin, fmt.Sprintf("localhost:%d", cfg.Server.Port))
		go hub.Run()
		eng.SetOnJobComplete(hub.NotifyAgent)
	}
	watcher := startEventWatcher(cfg, hub, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg, eng, hub, logger),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if watcher != nil {
			watcher.Stop()
		}
		if hub != nil {
			hub.Stop()
		}
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()
	logger.Info("http server listening", "addr", actualAddr)

	done := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if watcher != nil {
			watcher.Stop()
		}
		if hub != nil {
			eng.SetOnJobComplete(nil)
			hub.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown error", "err", err)
		}
	}()

	return actualAddr, done, nil
}

// startEventWatcher forwards job events written by other processes sharing
// the data directory to the stats hub. Nil when there is nothing to share.
func startEventWatcher(cfg *config.Config, hub *handlers.WebSocketHub, logger *log.Logger) *notify.EventWatcher {
	if hub == nil || cfg.Storage.StorageEngine == "memory" {
		return nil
	}
	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, func(_, agentID string) {
		hub.NotifyAgent(agentID)
	}, logger)
	if err := watcher.Start(); err != nil {
		logger.Warn("cross-process job events disabled", "err", err)
		return nil
	}
	return watcher
}
