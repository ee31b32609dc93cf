// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cache defines the expiring key-value collaborator used for volatile
counters and lookups.

Two implementations are provided:

  - MemoryStore: process-local, mutex guarded, swept by a janitor goroutine.
  - RedisStore: shared across replicas, backed by go-redis.

Consumers depend only on [Store], so the backend is swapped in main without
touching any caller.
*/
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by [Store.Get] when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the minimal get/set/incr/expire contract.
type Store interface {
	// Get returns the value stored at key, or [ErrMiss].
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the integer at key and returns the new value.
	// A missing or expired key starts from zero and carries no expiry.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the time-to-live of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key, or 0 if the key is absent
	// or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
