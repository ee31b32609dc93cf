// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Yomira CMS authentication gateway.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Open identity storage (PostgreSQL with migrations, or memory) and
//     register the configured API keys.
//  4. Open the rate-limit cache (Redis, or memory).
//  5. Build the hasher pool, token service and limiter.
//  6. Wire HTTP handlers and background jobs.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/yomira-cms/internal/api"
	"github.com/taibuivan/yomira-cms/internal/platform/cache"
	"github.com/taibuivan/yomira-cms/internal/platform/config"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/platform/middleware"
	"github.com/taibuivan/yomira-cms/internal/platform/migration"
	pgstore "github.com/taibuivan/yomira-cms/internal/platform/postgres"
	"github.com/taibuivan/yomira-cms/internal/platform/ratelimit"
	redisstore "github.com/taibuivan/yomira-cms/internal/platform/redis"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
	"github.com/taibuivan/yomira-cms/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
		slog.String("cache", cfg.CacheDriver),
	)

	// Background jobs stop when the process starts shutting down.
	appCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(appCtx, 30*time.Second)
	defer startupCancel()

	var health api.HealthDependencies

	// ── 3. Identity Storage ───────────────────────────────────────────────
	var (
		userRepository    auth.UserRepository
		refreshTokenStore auth.RefreshTokenStore
		apiKeyStore       auth.APIKeyStore
	)

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		must(log, migration.RunUp(startupCtx, migration.Options{
			DatabaseURL: cfg.DatabaseURL,
			Dir:         cfg.MigrationPath,
			Verbose:     cfg.Debug,
		}, log), "run migrations")

		pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing postgres pool")
			pool.Close()
		}()

		userRepository = auth.NewUserRepository(pool)
		refreshTokenStore = auth.NewRefreshTokenStore(pool, nil)
		apiKeyStore = auth.NewAPIKeyStore(pool)
		health.Storage = func(ctx context.Context) error { return pgstore.Ping(ctx, pool) }

	default:
		log.Warn("memory_storage_enabled", slog.String("note", "identities are lost on restart"))
		userRepository = auth.NewMemoryUserRepository()
		refreshTokenStore = auth.NewMemoryRefreshTokenStore(nil)
		apiKeyStore = auth.NewMemoryAPIKeyStore()
	}

	apiKeys := auth.NewAPIKeyRegistry(apiKeyStore, nil)
	revoked, err := apiKeys.Sync(startupCtx, cfg.APIKeys)
	must(log, err, "register api keys")
	log.Info("api_keys_registered",
		slog.Int("configured", len(cfg.APIKeys)),
		slog.Int64("revoked", revoked),
	)

	// ── 4. Rate-Limit Cache ───────────────────────────────────────────────
	var store cache.Store

	switch cfg.CacheDriver {
	case config.DriverRedis:
		rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log, redisstore.WithPoolSize(cfg.RedisPoolSize))
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
		store = cache.NewRedisStore(rdb, constants.AppName+":")

	default:
		memory := cache.NewMemoryStore()
		go memory.RunJanitor(appCtx, constants.CacheJanitorInterval)
		store = memory
	}
	health.Cache = store.Ping

	// ── 5. Security Primitives ────────────────────────────────────────────
	hasher, err := sec.NewPasswordHasher(cfg.BcryptCost, cfg.HashWorkers)
	must(log, err, "initialize password hasher")

	tokenService, err := sec.NewTokenService(sec.TokenConfig{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
		Issuer:        cfg.JWTIssuer,
	})
	must(log, err, "initialize token service")

	selfAssignable, err := parseRoles(cfg.SelfAssignableRoles)
	must(log, err, "parse self-assignable roles")

	limiter := ratelimit.New(store,
		ratelimit.WithWindow(cfg.RateLimitWindow),
		ratelimit.WithCeilings(map[ratelimit.Bucket]int{
			ratelimit.BucketAnonymous:     cfg.RateLimitAnonymous,
			ratelimit.BucketAuthenticated: cfg.RateLimitAuthenticated,
			ratelimit.BucketAPIKey:        cfg.RateLimitAPIKey,
		}),
	)

	// ── 6. Domain Wiring ──────────────────────────────────────────────────
	authService := auth.NewService(userRepository, refreshTokenStore, hasher, tokenService,
		auth.WithSelfAssignableRoles(selfAssignable...),
	)
	authHandler := auth.NewHandler(authService, middleware.BurstGuard(appCtx, cfg.AuthBurstRPS, cfg.AuthBurst))

	go authService.RunPruner(appCtx, cfg.TokenPruneInterval, log)

	liveness, readiness := api.NewHealthHandlers(health, log)

	server := api.NewServer(cfg, log, api.Handlers{
		Liveness:      liveness,
		Readiness:     readiness,
		Auth:          authHandler,
		Authenticator: authService,
		APIKeys:       apiKeys,
		Limiter:       limiter,
	})

	// ── 7. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	shutdownErr := server.Shutdown(shutdownTimeout)
	stopJobs()

	// Hashing submitted after this point is refused; work already handed to
	// the pool finishes before the stores close.
	hasher.Close()

	if shutdownErr != nil {
		log.Error("shutdown error", slog.Any("error", shutdownErr))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// parseRoles converts configured role names, rejecting unknown ones.
func parseRoles(names []string) ([]sec.Role, error) {
	roles := make([]sec.Role, 0, len(names))
	for _, name := range names {
		role, ok := sec.ParseRole(name)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
