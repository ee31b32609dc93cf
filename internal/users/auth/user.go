// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the authentication gateway of Yomira CMS.

It owns credential verification, dual-token issuance, refresh-token rotation
and the request-authentication step every protected route relies on.

# Architecture

  - Service: Orchestrates register, login, refresh, logout and request authentication.
  - Repository: UserRepository and RefreshTokenStore with PostgreSQL and in-memory backends.
  - Handler: JSON transport under /auth.
*/
package auth

import (
	"time"

	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

// # Domain Entities

// User represents a registered identity. It is created on register and never
// mutated by this package.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName  string    `json:"name"`
	Role         sec.Role  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity returns the token payload for this user.
func (user *User) Identity() sec.Identity {
	return sec.Identity{SubjectID: user.ID, Email: user.Email, Role: user.Role}
}

// RefreshToken is the server-side record of one issued refresh token. Only the
// token's SHA-256 hash is stored.
type RefreshToken struct {
	TokenHash string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (token *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(token.ExpiresAt)
}

// APIKey is a registered machine credential. The raw key is never stored;
// Prefix keeps its first characters so operators can tell keys apart.
type APIKey struct {
	KeyHash   string
	Prefix    string
	CreatedAt time.Time
}

// # Results

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	User                  *User            `json:"user"`
	AccessToken           string           `json:"accessToken"`
	RefreshToken          string           `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time        `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time        `json:"refreshTokenExpiresAt"`
	Permissions           []sec.Permission `json:"permissions"`
}

// Profile is the authenticated caller as returned by /auth/me.
type Profile struct {
	User        *User            `json:"user"`
	Permissions []sec.Permission `json:"permissions"`
}

// # Field Identifiers

// Field names used in validation errors.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldName     = "name"
	FieldRole     = "role"
)
