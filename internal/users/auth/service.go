// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-cms/internal/platform/metrics"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
	"github.com/taibuivan/yomira-cms/internal/platform/validate"
	"github.com/taibuivan/yomira-cms/pkg/uuid"
)

// # Contracts & Types

// PasswordHasher hashes and verifies credentials off the request goroutine.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) bool

	// Discard spends one verification's worth of work without a real hash.
	Discard(ctx context.Context, plaintext string) bool
}

// TokenIssuer signs and verifies both token kinds.
type TokenIssuer interface {
	SignAccess(identity sec.Identity) (sec.SignedToken, error)
	SignRefresh(identity sec.Identity) (sec.SignedToken, error)
	VerifyAccess(token string) (*sec.Claims, error)
	VerifyRefresh(token string) (*sec.Claims, error)
}

// DefaultSelfAssignableRoles are the roles a registrant may request.
var DefaultSelfAssignableRoles = []sec.Role{sec.RoleViewer, sec.RoleAuthor}

// Service implements the authentication gateway.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// token issuance or rotation must be reviewed by the security team.
type Service struct {
	userRepository    UserRepository
	refreshTokenStore RefreshTokenStore
	hasher            PasswordHasher
	tokenIssuer       TokenIssuer
	selfAssignable    []sec.Role
	now               func() time.Time
}

// Option customizes a [Service].
type Option func(*Service)

// WithSelfAssignableRoles replaces the roles a registrant may request.
func WithSelfAssignableRoles(roles ...sec.Role) Option {
	return func(service *Service) { service.selfAssignable = slices.Clone(roles) }
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	userRepo UserRepository,
	tokenStore RefreshTokenStore,
	hasher PasswordHasher,
	issuer TokenIssuer,
	opts ...Option,
) *Service {
	service := &Service{
		userRepository:    userRepo,
		refreshTokenStore: tokenStore,
		hasher:            hasher,
		tokenIssuer:       issuer,
		selfAssignable:    slices.Clone(DefaultSelfAssignableRoles),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (service *Service) selfAssignableNames() []string {
	names := make([]string, len(service.selfAssignable))
	for i, role := range service.selfAssignable {
		names[i] = string(role)
	}
	return names
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new identity.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

/*
Register validates, hashes, and persists a brand new identity, then issues
its first token pair.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *AuthResult: Created identity and tokens
  - err: ValidationError, EmailTaken, or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (result *AuthResult, err error) {
	defer func() { metrics.RecordAuth(operationRegister, err) }()

	email := strings.TrimSpace(input.Email)
	displayName := norm.NFC.String(strings.TrimSpace(input.DisplayName))

	// Every rule runs before storage is touched.
	validator := &validate.Validator{}
	validator.Required(FieldEmail, email).
		MaxLen(FieldEmail, email, EmailMaxLength).
		Email(FieldEmail, email).
		Password(FieldPassword, input.Password, PasswordMinLength).
		MinLen(FieldName, displayName, DisplayNameMinLength).
		MaxLen(FieldName, displayName, DisplayNameMaxLength)

	role := sec.RoleViewer
	if requested := strings.TrimSpace(input.Role); requested != "" {
		if parsed, ok := sec.ParseRole(requested); ok {
			requested = string(parsed)
		}
		validator.OneOf(FieldRole, requested, service.selfAssignableNames()...)
		role = sec.Role(requested)
	}

	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Fail fast before paying for a bcrypt run. Create re-checks under the
	// unique constraint.
	if _, err := service.userRepository.FindByEmail(context, email); err == nil {
		return nil, apperr.EmailTaken()
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("auth_service_register_lookup_failed: %w", err)
	}

	passwordHash, err := service.hasher.Hash(context, input.Password)
	if err != nil {
		if errors.Is(err, sec.ErrHasherClosed) {
			return nil, apperr.ServiceUnavailable("Server is shutting down")
		}
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Role:         role,
		CreatedAt:    service.now().UTC(),
	}

	if err := service.userRepository.Create(detach(context), user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperr.EmailTaken()
		}
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	return service.issue(context, user)
}

// # Authentication Flow

/*
Login verifies credentials and issues a token pair.

Description: An unknown email and a wrong password produce the same
InvalidCredentials error. Unknown emails still pay for one bcrypt comparison.

Parameters:
  - context: context.Context
  - email: string
  - password: string

Returns:
  - *AuthResult: Identity and tokens
  - err: InvalidCredentials or internal failures
*/
func (service *Service) Login(context context.Context, email, password string) (result *AuthResult, err error) {
	defer func() { metrics.RecordAuth(operationLogin, err) }()

	user, err := service.userRepository.FindByEmail(context, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("auth_service_login_lookup_failed: %w", err)
		}
		service.hasher.Discard(context, password)
		return nil, apperr.InvalidCredentials()
	}

	if !service.hasher.Verify(context, password, user.PasswordHash) {
		return nil, apperr.InvalidCredentials()
	}

	return service.issue(context, user)
}

/*
Refresh rotates a refresh token.

Description: Verifies the token, checks the stored record, and replaces it
with a new one in a single atomic store call. Every token or record failure
collapses into InvalidOrExpiredToken; only infrastructure failures surface
as internal errors.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *AuthResult: New token pair
  - err: InvalidOrExpiredToken, TokenConflict or storage failures
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (result *AuthResult, err error) {
	defer func() { metrics.RecordAuth(operationRefresh, err) }()

	logger := ctxutil.GetLogger(context)

	claims, err := service.tokenIssuer.VerifyRefresh(refreshToken)
	if err != nil {
		logger.DebugContext(context, "refresh_token_rejected", slog.String("reason", err.Error()))
		return nil, apperr.InvalidOrExpiredToken()
	}

	oldHash := sec.HashToken(refreshToken)
	record, err := service.refreshTokenStore.ConsumeForRotation(context, oldHash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenExpired) {
			logger.DebugContext(context, "refresh_record_rejected", slog.String("reason", err.Error()))
			return nil, apperr.InvalidOrExpiredToken()
		}
		return nil, fmt.Errorf("auth_service_refresh_lookup_failed: %w", err)
	}

	if record.UserID != claims.Subject {
		logger.WarnContext(context, "refresh_record_subject_mismatch")
		return nil, apperr.InvalidOrExpiredToken()
	}

	user, err := service.userRepository.FindByID(context, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.InvalidOrExpiredToken()
		}
		return nil, fmt.Errorf("auth_service_refresh_user_failed: %w", err)
	}

	tokens, next, err := service.mint(user)
	if err != nil {
		return nil, err
	}

	// Exactly one concurrent caller wins the rotation; losers see NotFound.
	if err := service.refreshTokenStore.Rotate(detach(context), oldHash, next); err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			return nil, apperr.InvalidOrExpiredToken()
		case errors.Is(err, ErrTokenConflict):
			logger.ErrorContext(context, "refresh_token_collision", slog.String("user_id", user.ID))
			return nil, apperr.TokenConflict(err)
		default:
			return nil, fmt.Errorf("auth_service_refresh_rotate_failed: %w", err)
		}
	}

	return tokens, nil
}

/*
Logout revokes a refresh token.

Description: Idempotent; unknown or already-rotated tokens are not an error.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - err: Revocation failures
*/
func (service *Service) Logout(context context.Context, refreshToken string) (err error) {
	defer func() { metrics.RecordAuth(operationLogout, err) }()

	if err := service.refreshTokenStore.Revoke(detach(context), sec.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}
	return nil
}

// # Request Authentication

/*
AuthenticateRequest verifies the Authorization header of a protected request.

Parameters:
  - context: context.Context
  - authorization: string ("Bearer <accessToken>")

Returns:
  - *sec.Identity: The verified caller
  - err: Unauthenticated for any missing, garbled or expired token
*/
func (service *Service) AuthenticateRequest(context context.Context, authorization string) (*sec.Identity, error) {
	token, ok := bearerToken(authorization)
	if !ok {
		return nil, apperr.Unauthenticated("Missing bearer token")
	}

	claims, err := service.tokenIssuer.VerifyAccess(token)
	if err != nil {
		ctxutil.GetLogger(context).DebugContext(context, "access_token_rejected",
			slog.Bool("expired", errors.Is(err, sec.ErrTokenExpired)),
			slog.String("reason", err.Error()),
		)
		return nil, apperr.Unauthenticated("Invalid or expired access token")
	}

	identity := claims.Identity()
	return &identity, nil
}

/*
Me returns the stored profile and permissions of an authenticated caller.

Parameters:
  - context: context.Context
  - identity: *sec.Identity

Returns:
  - *Profile: Identity summary and permissions
  - err: Unauthenticated if the identity no longer exists
*/
func (service *Service) Me(context context.Context, identity *sec.Identity) (*Profile, error) {
	user, err := service.userRepository.FindByID(context, identity.SubjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Unauthenticated("Identity no longer exists")
		}
		return nil, fmt.Errorf("auth_service_me_failed: %w", err)
	}

	return &Profile{User: user, Permissions: sec.PermissionsFor(user.Role)}, nil
}

// # Maintenance

// PruneExpired deletes refresh records past their expiry.
func (service *Service) PruneExpired(context context.Context) (int64, error) {
	removed, err := service.refreshTokenStore.DeleteExpired(context, service.now())
	if err != nil {
		return 0, fmt.Errorf("auth_service_prune_failed: %w", err)
	}
	return removed, nil
}

// RunPruner calls [Service.PruneExpired] every interval until ctx is done.
func (service *Service) RunPruner(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := service.PruneExpired(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "refresh_token_prune_failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.InfoContext(ctx, "refresh_token_pruned", slog.Int64("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// # Helpers

// issue mints a token pair for user and stores the refresh record.
func (service *Service) issue(context context.Context, user *User) (*AuthResult, error) {
	result, record, err := service.mint(user)
	if err != nil {
		return nil, err
	}

	if err := service.refreshTokenStore.Issue(detach(context), record); err != nil {
		if errors.Is(err, ErrTokenConflict) {
			ctxutil.GetLogger(context).ErrorContext(context, "refresh_token_collision", slog.String("user_id", user.ID))
			return nil, apperr.TokenConflict(err)
		}
		return nil, fmt.Errorf("auth_service_issue_failed: %w", err)
	}

	return result, nil
}

// mint signs both tokens and builds the matching refresh record.
func (service *Service) mint(user *User) (*AuthResult, *RefreshToken, error) {
	identity := user.Identity()

	access, err := service.tokenIssuer.SignAccess(identity)
	if err != nil {
		return nil, nil, fmt.Errorf("auth_service_sign_access_failed: %w", err)
	}

	refresh, err := service.tokenIssuer.SignRefresh(identity)
	if err != nil {
		return nil, nil, fmt.Errorf("auth_service_sign_refresh_failed: %w", err)
	}

	record := &RefreshToken{
		TokenHash: sec.HashToken(refresh.Value),
		UserID:    user.ID,
		IssuedAt:  service.now().UTC(),
		ExpiresAt: refresh.ExpiresAt,
	}

	return &AuthResult{
		User:                  user,
		AccessToken:           access.Value,
		RefreshToken:          refresh.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		Permissions:           sec.PermissionsFor(user.Role),
	}, record, nil
}

// detach keeps request values but drops cancellation, so a client hanging up
// cannot abandon a store write halfway.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// bearerToken strips the "Bearer " scheme. The scheme is case-insensitive.
func bearerToken(authorization string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, constants.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
