// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package requestutil_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
	"github.com/taibuivan/yomira-cms/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/yomira-cms/internal/platform/request"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

/*
TestDecodeJSON accepts objects and rejects garbage and oversized bodies.
*/
func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"Valid", `{"email":"alice@example.com"}`, false},
		{"Malformed", `{"email":`, true},
		{"Empty", ``, true},
		{"Oversized", `{"email":"` + strings.Repeat("a", requestutil.MaxBodyBytes) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target struct {
				Email string `json:"email"`
			}
			request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := requestutil.DecodeJSON(httptest.NewRecorder(), request, &target)

			if tt.wantErr {
				assert.True(t, apperr.HasCode(err, "VALIDATION_ERROR"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice@example.com", target.Email)
		})
	}
}

/*
TestDecodeOptionalJSON tolerates absent bodies and reads bodies of unknown length.
*/
func TestDecodeOptionalJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    io.Reader
		want    string
		wantErr bool
	}{
		{"No body", nil, "", false},
		{"Empty body", strings.NewReader(""), "", false},
		{"Sized body", strings.NewReader(`{"email":"alice@example.com"}`), "alice@example.com", false},
		{"Unknown length", io.MultiReader(strings.NewReader(`{"email":"alice@example.com"}`)), "alice@example.com", false},
		{"Malformed", io.MultiReader(strings.NewReader(`{"email":`)), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target struct {
				Email string `json:"email"`
			}
			request := httptest.NewRequest(http.MethodPost, "/", tt.body)
			err := requestutil.DecodeOptionalJSON(httptest.NewRecorder(), request, &target)

			if tt.wantErr {
				assert.True(t, apperr.HasCode(err, "VALIDATION_ERROR"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, target.Email)
		})
	}
}

/*
TestRequiredIdentity reports 401 for anonymous requests.
*/
func TestRequiredIdentity(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := requestutil.RequiredIdentity(request)
	assert.True(t, apperr.HasCode(err, "UNAUTHENTICATED"))

	identity := &sec.Identity{SubjectID: "u1", Role: sec.RoleViewer}
	request = request.WithContext(ctxutil.WithIdentity(request.Context(), identity))
	got, err := requestutil.RequiredIdentity(request)
	require.NoError(t, err)
	assert.Same(t, identity, got)
}
