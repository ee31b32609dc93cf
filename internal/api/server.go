// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/yomira-cms/internal/platform/config"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/platform/metrics"
	"github.com/taibuivan/yomira-cms/internal/platform/middleware"
	"github.com/taibuivan/yomira-cms/internal/platform/ratelimit"
	"github.com/taibuivan/yomira-cms/internal/users/auth"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups the HTTP handler sets and the request-level collaborators
// the middleware chain needs.
type Handlers struct {
	// Liveness is the /health handler. It returns 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler. It returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles the /auth routes.
	Auth *auth.Handler

	// Authenticator resolves bearer tokens for rate-limit bucketing.
	Authenticator middleware.Authenticator

	// APIKeys decides which X-API-Key values earn the apiKey bucket.
	APIKeys middleware.APIKeyResolver

	// Limiter enforces the fixed-window ceilings.
	Limiter *ratelimit.Limiter
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(cfg *config.Config, log *slog.Logger, h Handlers) *Server {
	r := chi.NewRouter()

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		log.Warn("trusted_proxies_ignored", slog.Any("error", err))
	}

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.TrustedProxies(trustedProxies))
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.PanicRecovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg, cfg.ExtraOrigins...))
	r.Use(chimw.CleanPath)
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))

	// # Infrastructure Endpoints
	// Unthrottled probes for container orchestration and scraping.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	r.Handle("/metrics", metrics.Handler())

	// # Application API
	r.Group(func(api chi.Router) {
		api.Use(middleware.RateLimit(h.Limiter, h.Authenticator, h.APIKeys))
		api.Mount("/auth", h.Auth.Routes())
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
