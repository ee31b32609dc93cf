// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit implements the fixed-window request gate.

Every (bucket, identifier) pair owns one counter in the cache. The first
request of a window sets the counter's expiry to now+window; each request
increments it; a request is allowed while count <= ceiling.

# Known Approximation

Fixed windows admit up to twice the ceiling across a window boundary (a full
quota at the end of one window followed by a full quota at the start of the
next). This is accepted behaviour, not a defect.
*/
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/yomira-cms/internal/platform/cache"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
)

// Bucket selects which ceiling applies to a caller.
type Bucket string

const (
	BucketAnonymous     Bucket = "anonymous"
	BucketAuthenticated Bucket = "authenticated"
	BucketAPIKey        Bucket = "apiKey"
)

// DefaultWindow is the fixed window length.
const DefaultWindow = time.Hour

// DefaultCeilings are the per-window request ceilings.
var DefaultCeilings = map[Bucket]int{
	BucketAnonymous:     100,
	BucketAuthenticated: 1000,
	BucketAPIKey:        10000,
}

// ErrUnknownBucket is returned for a bucket without a configured ceiling.
var ErrUnknownBucket = errors.New("ratelimit: unknown bucket")

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window counter gate over a [cache.Store].
type Limiter struct {
	store    cache.Store
	ceilings map[Bucket]int
	window   time.Duration
	now      func() time.Time
}

// Option customizes a [Limiter].
type Option func(*Limiter)

// WithCeilings replaces the per-bucket ceilings.
func WithCeilings(ceilings map[Bucket]int) Option {
	return func(limiter *Limiter) {
		limiter.ceilings = make(map[Bucket]int, len(ceilings))
		for bucket, ceiling := range ceilings {
			limiter.ceilings[bucket] = ceiling
		}
	}
}

// WithWindow replaces the window length.
func WithWindow(window time.Duration) Option {
	return func(limiter *Limiter) { limiter.window = window }
}

// WithClock overrides the time source used to compute resetAt.
func WithClock(now func() time.Time) Option {
	return func(limiter *Limiter) { limiter.now = now }
}

// New builds a limiter with the default ceilings and window unless overridden.
func New(store cache.Store, opts ...Option) *Limiter {
	limiter := &Limiter{
		store:  store,
		window: DefaultWindow,
		now:    time.Now,
	}
	WithCeilings(DefaultCeilings)(limiter)
	for _, opt := range opts {
		opt(limiter)
	}
	return limiter
}

// Ceiling returns the configured ceiling for bucket.
func (limiter *Limiter) Ceiling(bucket Bucket) (int, bool) {
	ceiling, ok := limiter.ceilings[bucket]
	return ceiling, ok
}

// CheckAndConsume counts one request for identifier in bucket and reports
// whether it is admitted. Cache failures are returned, never swallowed.
func (limiter *Limiter) CheckAndConsume(ctx context.Context, identifier string, bucket Bucket) (Decision, error) {
	ceiling, ok := limiter.ceilings[bucket]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}

	key := constants.RateLimitKeyPrefix + string(bucket) + ":" + identifier

	count, err := limiter.store.Incr(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit_incr_failed: %w", err)
	}

	ttl, err := limiter.store.TTL(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit_ttl_failed: %w", err)
	}

	// The first hit opens the window. A counter left without expiry (a crash
	// between INCR and EXPIRE) is also given one so it cannot live forever.
	if count == 1 || ttl <= 0 {
		if err := limiter.store.Expire(ctx, key, limiter.window); err != nil {
			return Decision{}, fmt.Errorf("ratelimit_expire_failed: %w", err)
		}
		ttl = limiter.window
	}

	remaining := ceiling - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(ceiling),
		Limit:     ceiling,
		Remaining: remaining,
		ResetAt:   limiter.now().Add(ttl),
	}, nil
}
