// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-cms/internal/platform/respond"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

// Authenticator resolves the Authorization header into a caller identity.
//
// # Why an interface?
//
// Declaring it here decouples the middleware from the auth service
// implementation, so tests can inject a stub.
type Authenticator interface {
	AuthenticateRequest(ctx context.Context, authorization string) (*sec.Identity, error)
}

// forwardedIdentityHeaders are set by [RequireAuth] and never trusted from clients.
var forwardedIdentityHeaders = []string{
	constants.HeaderUserID,
	constants.HeaderUserEmail,
	constants.HeaderUserRole,
}

// StripIdentityHeaders removes client-supplied identity headers so downstream
// handlers only ever see values written by [RequireAuth].
func StripIdentityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		for _, header := range forwardedIdentityHeaders {
			request.Header.Del(header)
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireAuth blocks requests without a valid access token.
//
// # Flow
//  1. Drop any incoming x-user-* headers.
//  2. Verify 'Authorization: Bearer <token>' via the [Authenticator].
//  3. On failure, abort with the authenticator's 401.
//  4. On success, attach the identity to the context and forward it as
//     x-user-id, x-user-email and x-user-role.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return StripIdentityHeaders(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Token Verification ─────────────────────────────────────────
			identity, err := authn.AuthenticateRequest(request.Context(), request.Header.Get(constants.HeaderAuthorization))
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			// ── 2. Identity Forwarding ────────────────────────────────────────
			request.Header.Set(constants.HeaderUserID, identity.SubjectID)
			request.Header.Set(constants.HeaderUserEmail, identity.Email)
			request.Header.Set(constants.HeaderUserRole, string(identity.Role))

			ctx := ctxutil.WithIdentity(request.Context(), identity)
			noteIdentity(ctx, identity.SubjectID)

			next.ServeHTTP(writer, request.WithContext(ctx))
		}))
	}
}

// RequirePermission blocks requests whose role does not grant permission.
//
// # Usage
//
// Must be registered AFTER [RequireAuth].
func RequirePermission(permission sec.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			identity := ctxutil.GetIdentity(request.Context())

			if identity == nil {
				respond.Error(writer, request, apperr.Unauthenticated("Authentication required"))
				return
			}

			if !identity.Role.Can(permission) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
