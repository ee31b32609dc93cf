// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrEmptyPassword is returned by [PasswordHasher.Hash] for an empty plaintext.
	ErrEmptyPassword = errors.New("sec: empty password")

	// ErrHasherClosed is returned for work submitted after [PasswordHasher.Close].
	ErrHasherClosed = errors.New("sec: password hasher closed")
)

// dummyPassword feeds the throwaway hash used by [PasswordHasher.Discard].
const dummyPassword = "yomira-cms-unknown-account"

// PasswordHasher hashes and verifies passwords with bcrypt on a bounded pool
// of worker slots, sized independently of the HTTP server.
//
// # Cancellation
//
// Work that has been handed to a slot always runs to completion. If the
// caller's context ends first, the caller returns ctx.Err() and the result
// is discarded.
type PasswordHasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewPasswordHasher builds a hasher with the given bcrypt cost and worker count.
// workers <= 0 means runtime.NumCPU().
func NewPasswordHasher(cost, workers int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("sec: bcrypt cost %d out of range", cost)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to prepare dummy hash: %w", err)
	}

	return &PasswordHasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(workers)),
		dummy: dummy,
	}, nil
}

// Hash returns the bcrypt hash of plaintext.
func (hasher *PasswordHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	var hashed []byte
	err := hasher.run(ctx, func() error {
		var hashErr error
		hashed, hashErr = bcrypt.GenerateFromPassword([]byte(plaintext), hasher.cost)
		return hashErr
	})
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A malformed hash or an ended
// context yields false.
func (hasher *PasswordHasher) Verify(ctx context.Context, plaintext, hash string) bool {
	err := hasher.run(ctx, func() error {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	})
	return err == nil
}

// Discard performs one full verification against a throwaway hash and always
// reports false. Used when the account does not exist.
func (hasher *PasswordHasher) Discard(ctx context.Context, plaintext string) bool {
	_ = hasher.run(ctx, func() error {
		return bcrypt.CompareHashAndPassword(hasher.dummy, []byte(plaintext))
	})
	return false
}

// Close refuses further work and blocks until every started hash or
// verification has finished. It is safe to call more than once.
func (hasher *PasswordHasher) Close() {
	hasher.mu.Lock()
	hasher.closed = true
	hasher.mu.Unlock()

	hasher.inflight.Wait()
}

// run acquires a slot and executes work on its own goroutine.
func (hasher *PasswordHasher) run(ctx context.Context, work func() error) error {
	hasher.mu.Lock()
	if hasher.closed {
		hasher.mu.Unlock()
		return ErrHasherClosed
	}
	hasher.inflight.Add(1)
	hasher.mu.Unlock()

	if err := hasher.slots.Acquire(ctx, 1); err != nil {
		hasher.inflight.Done()
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer hasher.inflight.Done()
		defer hasher.slots.Release(1)
		done <- work()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HashToken returns the hex SHA-256 of an opaque token. Refresh tokens and
// API keys are only ever stored or used as cache keys in this form.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
