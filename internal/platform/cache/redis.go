// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements [Store] on top of a go-redis client. INCR is atomic
// on the server, so counters stay linearizable across replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client. Every key is namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

/*
Get returns the value at key.

Returns:
  - string: Stored value
  - error: ErrMiss when absent, otherwise connectivity errors
*/
func (store *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := store.client.Get(ctx, store.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("redis_cache_get_failed: %w", err)
	}
	return value, nil
}

// Set implements [Store].
func (store *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := store.client.Set(ctx, store.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis_cache_set_failed: %w", err)
	}
	return nil
}

// Incr implements [Store].
func (store *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	count, err := store.client.Incr(ctx, store.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_cache_incr_failed: %w", err)
	}
	return count, nil
}

// Expire implements [Store].
func (store *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := store.client.PExpire(ctx, store.prefix+key, ttl).Err(); err != nil {
		return fmt.Errorf("redis_cache_expire_failed: %w", err)
	}
	return nil
}

// TTL implements [Store]. Redis reports -1 (no expiry) and -2 (missing) as
// negative durations; both become 0.
func (store *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := store.client.PTTL(ctx, store.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_cache_ttl_failed: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Delete implements [Store].
func (store *RedisStore) Delete(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, store.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis_cache_delete_failed: %w", err)
	}
	return nil
}

// Ping implements [Store].
func (store *RedisStore) Ping(ctx context.Context) error {
	if err := store.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis_cache_ping_failed: %w", err)
	}
	return nil
}
