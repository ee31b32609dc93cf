// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
)

func decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

/*
TestCreated_Envelope verifies the success envelope shape.
*/
func TestCreated_Envelope(t *testing.T) {
	recorder := httptest.NewRecorder()

	Created(recorder, map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, recorder.Code)
	body := decode(t, recorder)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"id": "1"}, body["data"])
}

/*
TestError_AppError renders code, message, statusCode, details and timestamp.
*/
func TestError_AppError(t *testing.T) {
	fixed := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(recorder, request, apperr.ValidationError("Validation failed",
		apperr.FieldError{Field: "email", Message: "Must be a valid email address"}))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decode(t, recorder)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "2026-05-06T07:08:09Z", body["timestamp"])

	inner := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", inner["error"])
	assert.Equal(t, "Validation failed", inner["message"])
	assert.Equal(t, float64(400), inner["statusCode"])
	assert.Len(t, inner["details"], 1)
}

/*
TestError_RateLimitedDetails exposes remaining and resetAt.
*/
func TestError_RateLimitedDetails(t *testing.T) {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	resetAt := time.Date(2026, 5, 6, 8, 0, 0, 0, time.UTC)

	Error(recorder, request, apperr.RateLimited(0, resetAt))

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	details := decode(t, recorder)["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, float64(0), details["remaining"])
	assert.Equal(t, "2026-05-06T08:00:00Z", details["resetAt"])
}

/*
TestError_PlainError hides the cause behind INTERNAL_ERROR.
*/
func TestError_PlainError(t *testing.T) {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(recorder, request, errors.New("dial tcp 10.0.0.1:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "10.0.0.1")

	inner := decode(t, recorder)["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", inner["error"])
	assert.NotContains(t, inner, "details")
}
