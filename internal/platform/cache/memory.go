// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (entry memoryEntry) expired(now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

// MemoryStore is a process-local [Store]. All operations are linearizable
// under a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// MemoryOption customizes a [MemoryStore].
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(store *MemoryStore) { store.now = now }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get implements [Store].
func (store *MemoryStore) Get(_ context.Context, key string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.live(key)
	if !ok {
		return "", ErrMiss
	}
	return entry.value, nil
}

// Set implements [Store].
func (store *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = store.now().Add(ttl)
	}
	store.entries[key] = entry
	return nil
}

// Incr implements [Store].
func (store *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.live(key)
	var current int64
	if ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cache: value at %q is not an integer", key)
		}
		current = parsed
	}

	current++
	entry.value = strconv.FormatInt(current, 10)
	store.entries[key] = entry
	return current, nil
}

// Expire implements [Store]. Missing keys are ignored.
func (store *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.live(key)
	if !ok {
		return nil
	}
	entry.expiresAt = store.now().Add(ttl)
	store.entries[key] = entry
	return nil
}

// TTL implements [Store].
func (store *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.live(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(store.now()), nil
}

// Delete implements [Store].
func (store *MemoryStore) Delete(_ context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.entries, key)
	return nil
}

// Ping implements [Store]. The in-process store is always reachable.
func (store *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored entries, expired ones included.
func (store *MemoryStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}

// Sweep removes every expired entry and returns how many were dropped.
func (store *MemoryStore) Sweep() int {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := store.now()
	removed := 0
	for key, entry := range store.entries {
		if entry.expired(now) {
			delete(store.entries, key)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired entries every interval until ctx is done.
func (store *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			store.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// live returns the entry at key, dropping it if it has expired. Caller holds mu.
func (store *MemoryStore) live(key string) (memoryEntry, bool) {
	entry, ok := store.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if entry.expired(store.now()) {
		delete(store.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}
