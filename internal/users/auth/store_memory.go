// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"slices"
	"sync"
	"time"
)

// # User Repository

// MemoryUserRepository is a process-local [UserRepository].
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryUserRepository creates an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// FindByID implements [UserRepository].
func (repository *MemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	user, ok := repository.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// FindByEmail implements [UserRepository].
func (repository *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	id, ok := repository.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *repository.byID[id]
	return &clone, nil
}

// Create implements [UserRepository].
func (repository *MemoryUserRepository) Create(_ context.Context, user *User) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if _, taken := repository.byEmail[user.Email]; taken {
		return ErrEmailTaken
	}
	clone := *user
	repository.byID[user.ID] = &clone
	repository.byEmail[user.Email] = user.ID
	return nil
}

// # Refresh Token Store

// MemoryRefreshTokenStore is a process-local [RefreshTokenStore]. Rotation
// runs under the store mutex, so check-delete-insert is a single step.
type MemoryRefreshTokenStore struct {
	mu      sync.Mutex
	records map[string]RefreshToken
	now     func() time.Time
}

// NewMemoryRefreshTokenStore creates an empty store. A nil now uses time.Now.
func NewMemoryRefreshTokenStore(now func() time.Time) *MemoryRefreshTokenStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRefreshTokenStore{
		records: make(map[string]RefreshToken),
		now:     now,
	}
}

// Issue implements [RefreshTokenStore].
func (store *MemoryRefreshTokenStore) Issue(_ context.Context, token *RefreshToken) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.records[token.TokenHash]; exists {
		return ErrTokenConflict
	}
	store.records[token.TokenHash] = *token
	return nil
}

// ConsumeForRotation implements [RefreshTokenStore].
func (store *MemoryRefreshTokenStore) ConsumeForRotation(_ context.Context, tokenHash string) (*RefreshToken, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.records[tokenHash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if record.Expired(store.now()) {
		return nil, ErrTokenExpired
	}
	return &record, nil
}

// Rotate implements [RefreshTokenStore].
func (store *MemoryRefreshTokenStore) Rotate(_ context.Context, oldHash string, next *RefreshToken) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.records[oldHash]
	if !ok || record.Expired(store.now()) {
		return ErrTokenNotFound
	}
	if _, exists := store.records[next.TokenHash]; exists {
		return ErrTokenConflict
	}

	delete(store.records, oldHash)
	store.records[next.TokenHash] = *next
	return nil
}

// Revoke implements [RefreshTokenStore].
func (store *MemoryRefreshTokenStore) Revoke(_ context.Context, tokenHash string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.records, tokenHash)
	return nil
}

// DeleteExpired implements [RefreshTokenStore].
func (store *MemoryRefreshTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var removed int64
	for hash, record := range store.records {
		if record.Expired(now) {
			delete(store.records, hash)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records.
func (store *MemoryRefreshTokenStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.records)
}

// # API Key Store

// MemoryAPIKeyStore is a process-local [APIKeyStore].
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]APIKey
}

// NewMemoryAPIKeyStore creates an empty store.
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[string]APIKey)}
}

// Find implements [APIKeyStore].
func (store *MemoryAPIKeyStore) Find(_ context.Context, keyHash string) (*APIKey, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	key, ok := store.keys[keyHash]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}
	return &key, nil
}

// Save implements [APIKeyStore].
func (store *MemoryAPIKeyStore) Save(_ context.Context, key *APIKey) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if existing, ok := store.keys[key.KeyHash]; ok {
		existing.Prefix = key.Prefix
		store.keys[key.KeyHash] = existing
		return nil
	}
	store.keys[key.KeyHash] = *key
	return nil
}

// DeleteExcept implements [APIKeyStore].
func (store *MemoryAPIKeyStore) DeleteExcept(_ context.Context, keep []string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var removed int64
	for hash := range store.keys {
		if !slices.Contains(keep, hash) {
			delete(store.keys, hash)
			removed++
		}
	}
	return removed, nil
}
