// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

// APIKeyRegistry decides which X-API-Key values earn the apiKey rate-limit
// bucket. Keys are provisioned by configuration and stored only as hashes.
type APIKeyRegistry struct {
	store APIKeyStore
	now   func() time.Time
}

// NewAPIKeyRegistry wraps store. A nil now uses time.Now.
func NewAPIKeyRegistry(store APIKeyStore, now func() time.Time) *APIKeyRegistry {
	if now == nil {
		now = time.Now
	}
	return &APIKeyRegistry{store: store, now: now}
}

/*
Sync makes the configured raw keys the complete set of registered keys.

Description: Every key is saved (existing ones keep their creation time) and
any stored key not in rawKeys is removed, so dropping a key from the
configuration revokes it on the next start.

Parameters:
  - context: context.Context
  - rawKeys: []string (Plaintext keys, each at least APIKeyMinLength long)

Returns:
  - int64: Number of stale keys removed
  - error: Invalid key or storage failures
*/
func (registry *APIKeyRegistry) Sync(context context.Context, rawKeys []string) (int64, error) {
	hashes := make([]string, 0, len(rawKeys))

	for i, raw := range rawKeys {
		if len(raw) < APIKeyMinLength {
			return 0, fmt.Errorf("auth_api_key_too_short: key #%d has %d characters, need %d", i+1, len(raw), APIKeyMinLength)
		}

		key := &APIKey{
			KeyHash:   sec.HashToken(raw),
			Prefix:    raw[:apiKeyPrefixLength],
			CreatedAt: registry.now().UTC(),
		}
		if err := registry.store.Save(context, key); err != nil {
			return 0, fmt.Errorf("auth_api_key_save_failed: %w", err)
		}
		hashes = append(hashes, key.KeyHash)
	}

	removed, err := registry.store.DeleteExcept(context, hashes)
	if err != nil {
		return 0, fmt.Errorf("auth_api_key_prune_failed: %w", err)
	}
	return removed, nil
}

// ResolveAPIKey reports whether keyHash belongs to a registered key.
func (registry *APIKeyRegistry) ResolveAPIKey(context context.Context, keyHash string) (bool, error) {
	if _, err := registry.store.Find(context, keyHash); err != nil {
		if errors.Is(err, ErrAPIKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("auth_api_key_resolve_failed: %w", err)
	}
	return true, nil
}
