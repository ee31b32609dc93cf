// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-cms/internal/platform/request"
	"github.com/taibuivan/yomira-cms/internal/platform/respond"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
	"github.com/taibuivan/yomira-cms/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the /auth HTTP endpoints.
//
// The handler is a thin transport layer: it decodes bodies, moves the refresh
// token between body and cookie, and maps results onto the JSON envelope.
// Every business rule lives in [Service].
type Handler struct {
	authService     *Service
	credentialGuard func(http.Handler) http.Handler
}

// NewHandler constructs a new [Handler]. credentialGuard wraps the register and
// login endpoints (typically [middleware.BurstGuard]); nil disables it.
func NewHandler(service *Service, credentialGuard func(http.Handler) http.Handler) *Handler {
	if credentialGuard == nil {
		credentialGuard = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{authService: service, credentialGuard: credentialGuard}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST /register                 : Creates an identity and returns a token pair.
//   - POST /login                    : Verifies credentials and returns a token pair.
//   - POST /refresh                  : Rotates a refresh token.
//   - POST /logout                   : Revokes a refresh token.
//   - GET  /me                       : Returns the caller (protected).
//   - GET  /permissions/{permission} : Checks one permission (protected).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.With(handler.credentialGuard).Post("/register", handler.register)
	router.With(handler.credentialGuard).Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(handler.authService))
		r.Get("/me", handler.me)
		r.Get("/permissions/{permission}", handler.checkPermission)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type permissionResponse struct {
	Permission sec.Permission `json:"permission"`
	Granted    bool           `json:"granted"`
}

/*
Register enrolls a new identity.

POST /auth/register

Request:
  - Body: registerRequest (email, password, name, role?)

Response:
  - 201: AuthResult: Created user and token pair
  - 400: VALIDATION_ERROR: Bad input
  - 409: EMAIL_TAKEN: Email already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.Name,
		Role:        input.Role,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, result.RefreshToken, result.RefreshTokenExpiresAt)
	respond.Created(writer, result)
}

/*
Login authenticates an identity with email and password.

POST /auth/login

Response:
  - 200: AuthResult: User and token pair
  - 401: INVALID_CREDENTIALS: Unknown email or wrong password
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), input.Email, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, result.RefreshToken, result.RefreshTokenExpiresAt)
	respond.OK(writer, result)
}

/*
Refresh rotates a refresh token.

POST /auth/refresh

Description: Reads the token from the body, falling back to the refresh
cookie. A used, revoked, expired or garbled token is a 401.

Response:
  - 200: AuthResult: New token pair
  - 401: INVALID_REFRESH_TOKEN
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	token, err := readRefreshToken(writer, request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if token == "" {
		respond.Error(writer, request, apperr.InvalidOrExpiredToken())
		return
	}

	result, err := handler.authService.Refresh(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, result.RefreshToken, result.RefreshTokenExpiresAt)
	respond.OK(writer, result)
}

/*
Logout revokes a refresh token and clears the cookie.

POST /auth/logout

Response:
  - 204: No Content (also when the token is unknown or absent)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	token, err := readRefreshToken(writer, request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if token != "" {
		if err := handler.authService.Logout(request.Context(), token); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.NoContent(writer)
}

// me returns the caller's stored profile.
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	profile, err := handler.authService.Me(request.Context(), identity)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, profile)
}

// checkPermission answers 200 when the caller's role grants the permission
// named in the path and 403 otherwise.
func (handler *Handler) checkPermission(writer http.ResponseWriter, request *http.Request) {
	permission := sec.Permission(requestutil.Param(request, "permission"))

	granted := http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		respond.OK(writer, permissionResponse{Permission: permission, Granted: true})
	})

	middleware.RequirePermission(permission)(granted).ServeHTTP(writer, request)
}

// # Helpers

// readRefreshToken takes the token from an optional JSON body, then the cookie.
func readRefreshToken(writer http.ResponseWriter, request *http.Request) (string, error) {
	var input refreshRequest

	if err := requestutil.DecodeOptionalJSON(writer, request, &input); err != nil {
		return "", err
	}

	if token := strings.TrimSpace(input.RefreshToken); token != "" {
		return token, nil
	}

	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
		return strings.TrimSpace(cookie.Value), nil
	}

	return "", nil
}

func setRefreshCookie(writer http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
