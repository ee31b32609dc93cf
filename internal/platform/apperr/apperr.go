// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for Yomira CMS.

It provides a rich error type that bridges the gap between low-level domain/storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing a machine-readable code and a client-safe message.
  - Mapping: Explicit mapping from AppError to standard HTTP status codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"net/http"
	"time"
)

// AppError is the canonical error type for the Yomira CMS API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and optional details (field errors, rate-limit state).
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries, tokens).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "EMAIL_TAKEN").
	Code string
	// Message is a human-readable description safe to return to the client.
	Message string
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int
	// Cause is the underlying error, used for server-side logging only.
	Cause error
	// Details is rendered verbatim into the error body when non-nil.
	Details any
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// RateLimitDetails is attached to RATE_LIMITED errors.
type RateLimitDetails struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// FieldErrors returns the validation details, or nil if Details holds something else.
func (e *AppError) FieldErrors() []FieldError {
	fields, _ := e.Details.([]FieldError)
	return fields
}

// # Client Errors (4xx)

// Unauthenticated creates a 401 [AppError] for a missing, garbled or expired access token.
func Unauthenticated(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHENTICATED",
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InvalidCredentials creates the single 401 returned for every failed login.
// Unknown email and wrong password must both produce exactly this value.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InvalidOrExpiredToken creates the opaque 401 returned for every failed refresh.
func InvalidOrExpiredToken() *AppError {
	return &AppError{
		Code:       "INVALID_REFRESH_TOKEN",
		Message:    "Invalid or expired refresh token",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// EmailTaken creates a 409 [AppError] for a registration against an existing identity.
func EmailTaken() *AppError {
	return &AppError{
		Code:       "EMAIL_TAKEN",
		Message:    "Email is already registered",
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	appError := &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
	if len(details) > 0 {
		appError.Details = details
	}
	return appError
}

// RateLimited creates a 429 [AppError] carrying the remaining quota and window reset time.
func RateLimited(remaining int, resetAt time.Time) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests. Try again after " + resetAt.UTC().Format(time.RFC3339) + ".",
		HTTPStatus: http.StatusTooManyRequests,
		Details:    RateLimitDetails{Remaining: remaining, ResetAt: resetAt.UTC()},
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// TokenConflict creates a 500 [AppError] for a refresh-token collision on issuance.
// Callers should log it as an anomaly.
func TokenConflict(cause error) *AppError {
	return &AppError{
		Code:       "TOKEN_CONFLICT",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for work refused while the
// server drains.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// HasCode reports whether err carries an [*AppError] with the given code.
func HasCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}
