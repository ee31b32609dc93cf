// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
	"github.com/taibuivan/yomira-cms/internal/platform/cache"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-cms/internal/platform/middleware"
	"github.com/taibuivan/yomira-cms/internal/platform/ratelimit"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

// stubAuthenticator accepts a single token value.
type stubAuthenticator struct {
	token    string
	identity sec.Identity
}

func (stub stubAuthenticator) AuthenticateRequest(_ context.Context, authorization string) (*sec.Identity, error) {
	if authorization != "Bearer "+stub.token {
		return nil, apperr.Unauthenticated("Invalid or expired access token")
	}
	identity := stub.identity
	return &identity, nil
}

func newStub() stubAuthenticator {
	return stubAuthenticator{
		token: "good",
		identity: sec.Identity{
			SubjectID: "0190b7a0-0000-7000-8000-000000000001",
			Email:     "alice@example.com",
			Role:      sec.RoleAuthor,
		},
	}
}

// stubKeys knows a fixed set of raw API keys.
type stubKeys map[string]bool

func (stub stubKeys) ResolveAPIKey(_ context.Context, keyHash string) (bool, error) {
	for key := range stub {
		if sec.HashToken(key) == keyHash {
			return true, nil
		}
	}
	return false, nil
}

type failingKeys struct{}

func (failingKeys) ResolveAPIKey(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

var okHandler = http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
})

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Error   map[string]any `json:"error"`
	}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
	assert.False(t, envelope.Success)
	return envelope.Error
}

/*
TestRequireAuth forwards identity headers only for valid tokens.
*/
func TestRequireAuth(t *testing.T) {
	var seen http.Header
	var seenIdentity *sec.Identity
	handler := middleware.RequireAuth(newStub())(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		seen = request.Header.Clone()
		seenIdentity = ctxutil.GetIdentity(request.Context())
		writer.WriteHeader(http.StatusOK)
	}))

	t.Run("Valid token", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/protected", nil)
		request.Header.Set("Authorization", "Bearer good")
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, request)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "0190b7a0-0000-7000-8000-000000000001", seen.Get("x-user-id"))
		assert.Equal(t, "alice@example.com", seen.Get("x-user-email"))
		assert.Equal(t, "author", seen.Get("x-user-role"))
		require.NotNil(t, seenIdentity)
		assert.Equal(t, sec.RoleAuthor, seenIdentity.Role)
	})

	t.Run("Spoofed headers are replaced", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/protected", nil)
		request.Header.Set("Authorization", "Bearer good")
		request.Header.Set("X-User-Role", "admin")
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, request)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, []string{"author"}, seen.Values("X-User-Role"))
	})

	for name, authorization := range map[string]string{
		"Missing header": "",
		"Wrong token":    "Bearer bad",
		"Wrong scheme":   "Basic good",
	} {
		t.Run(name, func(t *testing.T) {
			seen = nil
			request := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if authorization != "" {
				request.Header.Set("Authorization", authorization)
			}
			request.Header.Set("X-User-Id", "forged")
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
			assert.Nil(t, seen, "downstream must not run")
			body := decodeError(t, recorder)
			assert.Equal(t, "UNAUTHENTICATED", body["error"])
		})
	}
}

/*
TestRequirePermission allows roles whose grants cover the permission.
*/
func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		role       sec.Role
		permission sec.Permission
		want       int
	}{
		{"Author creates content", sec.RoleAuthor, "content:create", http.StatusOK},
		{"Author cannot publish", sec.RoleAuthor, "content:publish", http.StatusForbidden},
		{"Editor wildcard", sec.RoleEditor, "content:publish", http.StatusOK},
		{"Admin everything", sec.RoleAdmin, "users:delete", http.StatusOK},
		{"Viewer cannot upload", sec.RoleViewer, "media:upload", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			stub.identity.Role = tt.role
			handler := middleware.RequireAuth(stub)(middleware.RequirePermission(tt.permission)(okHandler))

			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.Header.Set("Authorization", "Bearer good")
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.want, recorder.Code)
		})
	}

	t.Run("Without RequireAuth", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		middleware.RequirePermission("content:read")(okHandler).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

/*
TestRateLimit resolves buckets and rejects the request past the ceiling.
*/
func TestRateLimit(t *testing.T) {
	newGate := func() http.Handler {
		limiter := ratelimit.New(cache.NewMemoryStore(), ratelimit.WithCeilings(map[ratelimit.Bucket]int{
			ratelimit.BucketAnonymous:     2,
			ratelimit.BucketAuthenticated: 3,
			ratelimit.BucketAPIKey:        4,
		}))
		return middleware.RateLimit(limiter, newStub(), stubKeys{"key-123": true})(okHandler)
	}

	t.Run("Anonymous ceiling", func(t *testing.T) {
		gate := newGate()
		for i := 0; i < 2; i++ {
			recorder := httptest.NewRecorder()
			gate.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, recorder.Code)
			assert.Equal(t, "2", recorder.Header().Get(constants.HeaderRateLimitLimit))
		}

		recorder := httptest.NewRecorder()
		gate.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusTooManyRequests, recorder.Code)
		assert.Equal(t, "0", recorder.Header().Get(constants.HeaderRateLimitRemaining))
		assert.NotEmpty(t, recorder.Header().Get(constants.HeaderRetryAfter))

		body := decodeError(t, recorder)
		assert.Equal(t, "RATE_LIMITED", body["error"])
		details, ok := body["details"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 0, details["remaining"])
		resetAt, err := time.Parse(time.RFC3339, details["resetAt"].(string))
		require.NoError(t, err)
		assert.True(t, resetAt.After(time.Now()))
	})

	t.Run("Authenticated bucket", func(t *testing.T) {
		gate := newGate()
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer good")
		recorder := httptest.NewRecorder()
		gate.ServeHTTP(recorder, request)

		assert.Equal(t, "3", recorder.Header().Get(constants.HeaderRateLimitLimit))
	})

	t.Run("Invalid bearer falls back to anonymous", func(t *testing.T) {
		gate := newGate()
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", "Bearer bad")
		recorder := httptest.NewRecorder()
		gate.ServeHTTP(recorder, request)

		assert.Equal(t, "2", recorder.Header().Get(constants.HeaderRateLimitLimit))
	})

	t.Run("API key bucket", func(t *testing.T) {
		gate := newGate()
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("X-API-Key", "key-123")
		recorder := httptest.NewRecorder()
		gate.ServeHTTP(recorder, request)

		assert.Equal(t, "4", recorder.Header().Get(constants.HeaderRateLimitLimit))
		assert.Equal(t, "3", recorder.Header().Get(constants.HeaderRateLimitRemaining))
	})

	t.Run("Unknown API keys count as anonymous", func(t *testing.T) {
		gate := newGate()

		admitted := 0
		for i := range 50 {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = "203.0.113.50:4000"
			request.Header.Set("X-API-Key", fmt.Sprintf("made-up-%d", i))
			recorder := httptest.NewRecorder()
			gate.ServeHTTP(recorder, request)

			assert.Equal(t, "2", recorder.Header().Get(constants.HeaderRateLimitLimit))
			if recorder.Code == http.StatusOK {
				admitted++
			}
		}
		assert.Equal(t, 2, admitted)
	})

	t.Run("Unknown API key with bearer uses authenticated bucket", func(t *testing.T) {
		gate := newGate()
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("X-API-Key", "made-up")
		request.Header.Set("Authorization", "Bearer good")
		recorder := httptest.NewRecorder()
		gate.ServeHTTP(recorder, request)

		assert.Equal(t, "3", recorder.Header().Get(constants.HeaderRateLimitLimit))
	})

	t.Run("Key lookup failure counts as anonymous", func(t *testing.T) {
		limiter := ratelimit.New(cache.NewMemoryStore(), ratelimit.WithCeilings(map[ratelimit.Bucket]int{
			ratelimit.BucketAnonymous:     2,
			ratelimit.BucketAuthenticated: 3,
			ratelimit.BucketAPIKey:        4,
		}))
		gate := middleware.RateLimit(limiter, nil, failingKeys{})(okHandler)

		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("X-API-Key", "key-123")
		recorder := httptest.NewRecorder()
		gate.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "2", recorder.Header().Get(constants.HeaderRateLimitLimit))
	})

	t.Run("Forwarded headers from untrusted peers are ignored", func(t *testing.T) {
		gate := middleware.TrustedProxies(nil)(newGate())

		admitted := 0
		for i := range 50 {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = "203.0.113.60:4000"
			request.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
			request.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i))
			recorder := httptest.NewRecorder()
			gate.ServeHTTP(recorder, request)

			if recorder.Code == http.StatusOK {
				admitted++
			}
		}
		assert.Equal(t, 2, admitted)
	})
}

type brokenStore struct {
	cache.Store
}

func (brokenStore) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

/*
TestRateLimit_CacheFailure answers 500 instead of failing open.
*/
func TestRateLimit_CacheFailure(t *testing.T) {
	gate := middleware.RateLimit(ratelimit.New(brokenStore{}), nil, nil)(okHandler)
	recorder := httptest.NewRecorder()
	gate.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	body := decodeError(t, recorder)
	assert.NotContains(t, body["message"], "connection refused")
}

/*
TestBurstGuard rejects requests beyond the burst from one IP.
*/
func TestBurstGuard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard := middleware.BurstGuard(ctx, 0.001, 2)(okHandler)

	send := func(ip string) int {
		request := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		request.RemoteAddr = ip + ":4000"
		recorder := httptest.NewRecorder()
		guard.ServeHTTP(recorder, request)
		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"), "other clients keep their own bucket")
}

/*
TestPanicRecovery converts panics into the error envelope.
*/
func TestPanicRecovery(t *testing.T) {
	handler := middleware.PanicRecovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	body := decodeError(t, recorder)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
}

/*
TestStructuredLogger logs the subject attached by RequireAuth.
*/
func TestStructuredLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))

	handler := middleware.RequestID()(
		middleware.StructuredLogger(logger)(
			middleware.RequireAuth(newStub())(okHandler),
		),
	)

	request := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	request.Header.Set("Authorization", "Bearer good")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buffer.Bytes()), &entry))
	assert.Equal(t, "http_request_finished", entry["msg"])
	assert.Equal(t, "0190b7a0-0000-7000-8000-000000000001", entry["user_id"])
	assert.EqualValues(t, 200, entry["status"])
	assert.NotContains(t, buffer.String(), "Bearer good")
}

type devConfig bool

func (dev devConfig) IsDevelopment() bool { return bool(dev) }

/*
TestCORS restricts origins outside development.
*/
func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		dev     bool
		origin  string
		allowed bool
	}{
		{"Development allows any", true, "http://localhost:3000", true},
		{"Production allows subdomain", false, "https://admin.yomira.app", true},
		{"Production allows extra origin", false, "https://partner.example", true},
		{"Production rejects lookalike", false, "https://evilyomira.app", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.CORS(devConfig(tt.dev), "https://partner.example")(okHandler)
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.Header.Set("Origin", tt.origin)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			got := recorder.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed {
				assert.Equal(t, tt.origin, got)
				assert.True(t, strings.Contains(recorder.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining"))
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

/*
TestTrustedProxies believes forwarding headers only from trusted peers.
*/
func TestTrustedProxies(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	var seen string
	handler := middleware.TrustedProxies(trusted)(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		seen = middleware.RealIP(request)
	}))

	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{"Direct client", "203.0.113.9:5555", "", "", "203.0.113.9"},
		{"Untrusted peer spoofing X-Real-IP", "203.0.113.9:5555", "198.51.100.4", "", "203.0.113.9"},
		{"Untrusted peer spoofing X-Forwarded-For", "203.0.113.9:5555", "", "198.51.100.4", "203.0.113.9"},
		{"Trusted proxy with X-Real-IP", "10.0.0.1:5555", "198.51.100.4", "", "198.51.100.4"},
		{"Trusted proxy chain", "10.0.0.1:5555", "", "203.0.113.9, 10.0.0.2", "203.0.113.9"},
		{"Client-prepended hop is skipped", "10.0.0.1:5555", "", "1.2.3.4, 203.0.113.9", "203.0.113.9"},
		{"Trusted proxy without headers", "10.0.0.1:5555", "", "", "10.0.0.1"},
		{"Garbage header", "10.0.0.1:5555", "", "not-an-ip", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				request.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				request.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			handler.ServeHTTP(httptest.NewRecorder(), request)
			assert.Equal(t, tt.want, seen)
		})
	}
}
