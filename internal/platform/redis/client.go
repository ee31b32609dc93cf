// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis dials the shared Redis instance that holds the fixed-window
rate-limit counters, so every API replica sees the same count.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter traffic is one INCR plus an occasional EXPIRE per request, so the
// deadlines stay short and a stalled server surfaces as a 500 quickly.
const (
	defaultPoolSize = 10
	dialTimeout     = 3 * time.Second
	readTimeout     = 2 * time.Second
	writeTimeout    = 2 * time.Second
	pingTimeout     = 2 * time.Second
)

// Option adjusts the client before it is dialed.
type Option func(*redis.Options)

// WithPoolSize sets the connection pool size. Idle connections scale with it.
// Non-positive sizes are ignored.
func WithPoolSize(size int) Option {
	return func(options *redis.Options) {
		if size <= 0 {
			return
		}
		options.PoolSize = size
		options.MinIdleConns = max(1, size/5)
		options.MaxIdleConns = max(1, size/2)
	}
}

/*
NewClient parses redisURL, applies opts and pings the server once.

Parameters:
  - context: Context for the initial ping
  - redisURL: redis:// or rediss:// URL
  - logger: Structured logger for connection events
  - opts: Pool tuning

Returns:
  - *redis.Client: Connected client, owned by the caller
  - error: Invalid URL or unreachable server
*/
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger, opts ...Option) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout
	WithPoolSize(defaultPoolSize)(options)
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(options)

	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.Int("pool_size", options.PoolSize),
		slog.Bool("tls", options.TLSConfig != nil),
	)

	return client, nil
}

// Ping verifies that the Redis client is healthy within pingTimeout.
func Ping(context stdctx.Context, client *redis.Client) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	return nil
}
