// Package server exposes a Manager over HTTP for sidecar deployments:
// flag lookups, admin inspection and change webhooks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/OrlandoBitencourt/flagcache"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Flags is what the server needs from a Manager
type Flags interface {
	GetFlag(ctx context.Context, key string, user *flagcache.User) (flagcache.FlagResult, error)
	GetMemoryFlags() map[string]flagcache.FlagResult
	Refresh(ctx context.Context, forceClear bool)
	Stats() flagcache.Stats
	IsReady() bool
}

// Config holds server configuration
type Config struct {
	// Addr is the listen address, e.g. ":8090"
	Addr string

	// WebhookSecret enables HMAC-SHA256 verification of webhook bodies
	WebhookSecret string

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8090",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server serves flags, admin endpoints and webhooks
type Server struct {
	flags  Flags
	config Config
	logger *zap.Logger
}

// New creates a server
func New(flags Flags, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Server{flags: flags, config: cfg, logger: logger}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.With(WithUser).Get("/flags/{key}", s.handleFlag)

	r.Route("/admin", func(admin chi.Router) {
		admin.Get("/stats", s.handleStats)
		admin.Get("/flags", s.handleFlags)
		admin.Post("/refresh", s.handleRefresh)
	})

	r.Post("/webhook", s.handleWebhook)

	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("flag server listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
