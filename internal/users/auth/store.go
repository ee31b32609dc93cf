// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"time"
)

// # Storage Failures

var (
	// ErrUserNotFound is returned when no identity matches the lookup.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrEmailTaken is returned when an identity with the same email exists.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrTokenNotFound is returned when no refresh record matches the hash.
	ErrTokenNotFound = errors.New("auth: refresh token not found")

	// ErrTokenExpired is returned when the refresh record is past its expiry.
	ErrTokenExpired = errors.New("auth: refresh token expired")

	// ErrTokenConflict is returned when a refresh record with the same hash exists.
	ErrTokenConflict = errors.New("auth: refresh token already issued")

	// ErrAPIKeyNotFound is returned when no registered key matches the hash.
	ErrAPIKeyNotFound = errors.New("auth: api key not found")
)

// # User Data Access

// UserRepository defines the data access contract for identities.
type UserRepository interface {

	/*
		FindByID returns the identity with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: ErrUserNotFound or retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the identity with the given email. Emails are
		compared exactly.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: ErrUserNotFound or retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new identity.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: ErrEmailTaken or persistence failures
	*/
	Create(context context.Context, user *User) error
}

// # Refresh Token Data Access

// RefreshTokenStore is the durable record of issued refresh tokens. Records
// are keyed by token hash and are never mutated, only inserted and deleted.
type RefreshTokenStore interface {

	/*
		Issue inserts a new record.

		Returns:
		  - error: ErrTokenConflict if the hash already exists
	*/
	Issue(context context.Context, token *RefreshToken) error

	/*
		ConsumeForRotation looks up the record for tokenHash without mutating
		anything.

		Returns:
		  - *RefreshToken: The live record
		  - error: ErrTokenNotFound or ErrTokenExpired
	*/
	ConsumeForRotation(context context.Context, tokenHash string) (*RefreshToken, error)

	/*
		Rotate deletes the record for oldHash and inserts next as one atomic
		unit. Of several concurrent calls for the same oldHash exactly one
		succeeds; the rest receive ErrTokenNotFound.

		Returns:
		  - error: ErrTokenNotFound, ErrTokenConflict or persistence failures
	*/
	Rotate(context context.Context, oldHash string, next *RefreshToken) error

	/*
		Revoke deletes the record for tokenHash. Deleting an absent record is
		not an error.
	*/
	Revoke(context context.Context, tokenHash string) error

	/*
		DeleteExpired removes every record whose expiry is at or before now.

		Returns:
		  - int64: Number of records removed
	*/
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}

// # API Key Data Access

// APIKeyStore holds the registered API keys, keyed by hash.
type APIKeyStore interface {

	// Find returns the key for keyHash, or ErrAPIKeyNotFound.
	Find(context context.Context, keyHash string) (*APIKey, error)

	// Save inserts key, or refreshes its prefix when the hash already exists.
	Save(context context.Context, key *APIKey) error

	/*
		DeleteExcept removes every key whose hash is not in keep. An empty
		keep removes all keys.

		Returns:
		  - int64: Number of keys removed
	*/
	DeleteExcept(context context.Context, keep []string) (int64, error)
}
