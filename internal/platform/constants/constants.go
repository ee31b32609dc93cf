// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, header names, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Bucket names, headers and guard housekeeping.
  - Security: Identity forwarding headers and cookie configuration.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "yomira-cms"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// BurstGuardCleanupInterval is how often idle IP entries are removed from the burst guard.
	BurstGuardCleanupInterval = 1 * time.Minute

	// BurstGuardClientTTL is how long a client must be idle before its entry is deleted.
	BurstGuardClientTTL = 3 * time.Minute

	// CacheJanitorInterval is how often the in-memory cache sweeps expired keys.
	CacheJanitorInterval = 1 * time.Minute

	// RateLimitKeyPrefix namespaces fixed-window counters in the cache.
	RateLimitKeyPrefix = "ratelimit:"
)

// # HTTP Headers

const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-Key"
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"

	// Identity forwarded to downstream handlers after authentication.
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// # Authentication

const (
	// BearerScheme is the Authorization scheme for access tokens.
	BearerScheme = "Bearer"

	// RefreshTokenCookieName is the name of the cookie that stores the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RefreshTokenCookiePath is the scoped path for the refresh token cookie.
	RefreshTokenCookiePath = "/auth"
)

// # JSON Field Identifiers

const (
	FieldStatus  = "status"
	FieldChecks  = "checks"
	FieldVersion = "version"
)

// # Database Schemas

const (
	SchemaUsers = "users"
)
