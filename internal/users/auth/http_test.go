// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/users/auth"
)

// # Helpers

type authEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
			Role  string `json:"role"`
		} `json:"user"`
		AccessToken  string   `json:"accessToken"`
		RefreshToken string   `json:"refreshToken"`
		Permissions  []string `json:"permissions"`
	} `json:"data"`
}

type errorEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
	Timestamp string `json:"timestamp"`
}

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	fx := newFixture(t)

	router := chi.NewRouter()
	router.Mount("/auth", auth.NewHandler(fx.service, nil).Routes())
	return router, fx
}

func do(router http.Handler, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, nil)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range mutate {
		fn(request)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out), recorder.Body.String())
	return out
}

func refreshCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == constants.RefreshTokenCookieName {
			return cookie
		}
	}
	t.Fatalf("no %s cookie set", constants.RefreshTokenCookieName)
	return nil
}

const aliceBody = `{"email":"alice@example.com","password":"Passw0rd!","name":"Alice"}`

// # Endpoints

/*
TestHandler_Scenario walks register, login, refresh and a replay over HTTP.
*/
func TestHandler_Scenario(t *testing.T) {
	router, _ := newTestRouter(t)

	register := do(router, http.MethodPost, "/auth/register", aliceBody)
	require.Equal(t, http.StatusCreated, register.Code, register.Body.String())

	registered := decode[authEnvelope](t, register)
	assert.True(t, registered.Success)
	assert.Equal(t, "alice@example.com", registered.Data.User.Email)
	assert.Equal(t, "Alice", registered.Data.User.Name)
	assert.Equal(t, "viewer", registered.Data.User.Role)
	assert.NotEmpty(t, registered.Data.AccessToken)
	assert.NotContains(t, register.Body.String(), "password")

	cookie := refreshCookie(t, register)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, registered.Data.RefreshToken, cookie.Value)

	login := do(router, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, login.Code, login.Body.String())
	loggedIn := decode[authEnvelope](t, login)

	refreshBody := `{"refreshToken":"` + loggedIn.Data.RefreshToken + `"}`
	refresh := do(router, http.MethodPost, "/auth/refresh", refreshBody)
	require.Equal(t, http.StatusOK, refresh.Code, refresh.Body.String())
	assert.NotEqual(t, loggedIn.Data.RefreshToken, decode[authEnvelope](t, refresh).Data.RefreshToken)

	replay := do(router, http.MethodPost, "/auth/refresh", refreshBody)
	require.Equal(t, http.StatusUnauthorized, replay.Code)

	failure := decode[errorEnvelope](t, replay)
	assert.False(t, failure.Success)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", failure.Error.Error)
	assert.Equal(t, http.StatusUnauthorized, failure.Error.StatusCode)
	assert.NotEmpty(t, failure.Timestamp)
}

/*
TestHandler_Register_Errors maps validation and conflicts to the envelope.
*/
func TestHandler_Register_Errors(t *testing.T) {
	router, _ := newTestRouter(t)

	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/auth/register", aliceBody).Code)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"duplicate", aliceBody, http.StatusConflict, "EMAIL_TAKEN"},
		{"weak password", `{"email":"bob@example.com","password":"password","name":"Bob"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"admin role", `{"email":"bob@example.com","password":"Passw0rd!","name":"Bob","role":"admin"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", `{"email":`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := do(router, http.MethodPost, "/auth/register", tt.body)
			assert.Equal(t, tt.status, recorder.Code)
			assert.Equal(t, tt.code, decode[errorEnvelope](t, recorder).Error.Error)
		})
	}
}

/*
TestHandler_Login_Uniform verifies both credential failures render identically.
*/
func TestHandler_Login_Uniform(t *testing.T) {
	router, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/auth/register", aliceBody).Code)

	wrong := do(router, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"Wrong0ne!"}`)
	unknown := do(router, http.MethodPost, "/auth/login", `{"email":"ghost@example.com","password":"Passw0rd!"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, decode[errorEnvelope](t, wrong).Error, decode[errorEnvelope](t, unknown).Error)
}

/*
TestHandler_Refresh_Cookie verifies the cookie fallback and the missing-token path.
*/
func TestHandler_Refresh_Cookie(t *testing.T) {
	router, _ := newTestRouter(t)

	register := do(router, http.MethodPost, "/auth/register", aliceBody)
	require.Equal(t, http.StatusCreated, register.Code)
	cookie := refreshCookie(t, register)

	refresh := do(router, http.MethodPost, "/auth/refresh", "", func(r *http.Request) { r.AddCookie(cookie) })
	require.Equal(t, http.StatusOK, refresh.Code, refresh.Body.String())
	assert.NotEqual(t, cookie.Value, refreshCookie(t, refresh).Value)

	missing := do(router, http.MethodPost, "/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
}

/*
TestHandler_Logout verifies 204 regardless of token state and that the token
is dead afterwards.
*/
func TestHandler_Logout(t *testing.T) {
	router, _ := newTestRouter(t)

	registered := decode[authEnvelope](t, do(router, http.MethodPost, "/auth/register", aliceBody))
	body := `{"refreshToken":"` + registered.Data.RefreshToken + `"}`

	for range 2 {
		recorder := do(router, http.MethodPost, "/auth/logout", body)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
		assert.Equal(t, -1, refreshCookie(t, recorder).MaxAge)
	}
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodPost, "/auth/logout", "").Code)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/auth/refresh", body).Code)
}

/*
TestHandler_ChunkedBody reads refresh tokens from bodies sent without a
Content-Length, for both rotation and revocation.
*/
func TestHandler_ChunkedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	registered := decode[authEnvelope](t, do(router, http.MethodPost, "/auth/register", aliceBody))

	chunked := func(path, token string) *httptest.ResponseRecorder {
		body := io.MultiReader(strings.NewReader(`{"refreshToken":"` + token + `"}`))
		request := httptest.NewRequest(http.MethodPost, path, body)
		request.Header.Set("Content-Type", "application/json")
		request.TransferEncoding = []string{"chunked"}
		require.EqualValues(t, -1, request.ContentLength)

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		return recorder
	}

	refresh := chunked("/auth/refresh", registered.Data.RefreshToken)
	require.Equal(t, http.StatusOK, refresh.Code, refresh.Body.String())
	rotated := decode[authEnvelope](t, refresh).Data.RefreshToken
	assert.NotEqual(t, registered.Data.RefreshToken, rotated)

	logout := chunked("/auth/logout", rotated)
	require.Equal(t, http.StatusNoContent, logout.Code)

	replay := do(router, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+rotated+`"}`)
	assert.Equal(t, http.StatusUnauthorized, replay.Code, "logout must revoke the rotated token")
}

/*
TestHandler_Protected covers /me and the permission probe.
*/
func TestHandler_Protected(t *testing.T) {
	router, _ := newTestRouter(t)

	registered := decode[authEnvelope](t, do(router, http.MethodPost, "/auth/register", aliceBody))
	bearer := func(r *http.Request) {
		r.Header.Set(constants.HeaderAuthorization, "Bearer "+registered.Data.AccessToken)
	}

	t.Run("me", func(t *testing.T) {
		recorder := do(router, http.MethodGet, "/auth/me", "", bearer)
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

		profile := decode[authEnvelope](t, recorder)
		assert.Equal(t, registered.Data.User.ID, profile.Data.User.ID)
		assert.Contains(t, profile.Data.Permissions, "content:read")
	})

	t.Run("me without token", func(t *testing.T) {
		recorder := do(router, http.MethodGet, "/auth/me", "")
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Equal(t, "UNAUTHENTICATED", decode[errorEnvelope](t, recorder).Error.Error)
	})

	tests := []struct {
		permission string
		status     int
	}{
		{"content:read", http.StatusOK},
		{"comments:create", http.StatusOK},
		{"content:create", http.StatusForbidden},
		{"users:read", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run("permission "+tt.permission, func(t *testing.T) {
			recorder := do(router, http.MethodGet, "/auth/permissions/"+tt.permission, "", bearer)
			assert.Equal(t, tt.status, recorder.Code, recorder.Body.String())

			if tt.status == http.StatusOK {
				var body struct {
					Data struct {
						Permission string `json:"permission"`
						Granted    bool   `json:"granted"`
					} `json:"data"`
				}
				require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
				assert.Equal(t, tt.permission, body.Data.Permission)
				assert.True(t, body.Data.Granted)
			}
		})
	}
}
