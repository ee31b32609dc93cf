// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives, token management and the
// role/permission table.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, JWT signing,
// permission resolution) from the domain logic. It is injected into the
// application layer through small interfaces declared by the consumers.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// # Failure Kinds

var (
	// ErrTokenInvalid covers every rejection other than expiry.
	ErrTokenInvalid = errors.New("sec: token invalid")

	// ErrTokenExpired means the signature was valid but the token is past its expiry.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenMalformed means the token could not be parsed at all.
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrTokenInvalid)

	// ErrTokenSignature means the token was signed with a different secret.
	ErrTokenSignature = fmt.Errorf("%w: bad signature", ErrTokenInvalid)
)

// Token type discriminators carried in the "typ" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// # Payload

// Identity is the payload embedded in both token kinds.
type Identity struct {
	SubjectID string
	Email     string
	Role      Role
}

// Claims represents the JWT body. Subject carries the identity ID.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email"`
	Role  Role   `json:"role"`
	Type  string `json:"typ"`
}

// Identity extracts the payload from verified claims.
func (claims *Claims) Identity() Identity {
	return Identity{SubjectID: claims.Subject, Email: claims.Email, Role: claims.Role}
}

// SignedToken is a freshly minted token and its embedded expiry.
type SignedToken struct {
	Value     string
	ExpiresAt time.Time
}

// # Token Service

// TokenConfig carries the secrets and lifetimes for both token kinds.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenOption customizes a [TokenService].
type TokenOption func(*TokenService)

// WithClock overrides the time source used for signing and verification.
func WithClock(now func() time.Time) TokenOption {
	return func(service *TokenService) { service.now = now }
}

// TokenService signs and verifies HS256 access and refresh tokens. Each kind
// has its own secret and lifetime.
type TokenService struct {
	access  keyRing
	refresh keyRing
	issuer  string
	now     func() time.Time
}

type keyRing struct {
	secret    []byte
	ttl       time.Duration
	tokenType string
}

// NewTokenService validates cfg and returns a ready service.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("sec: token secrets must not be empty")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("sec: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("sec: token lifetimes must be positive")
	}

	service := &TokenService{
		access:  keyRing{secret: cfg.AccessSecret, ttl: cfg.AccessTTL, tokenType: TokenTypeAccess},
		refresh: keyRing{secret: cfg.RefreshSecret, ttl: cfg.RefreshTTL, tokenType: TokenTypeRefresh},
		issuer:  cfg.Issuer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// SignAccess mints a short-lived access token.
func (service *TokenService) SignAccess(identity Identity) (SignedToken, error) {
	return service.sign(service.access, identity)
}

// SignRefresh mints a long-lived refresh token.
func (service *TokenService) SignRefresh(identity Identity) (SignedToken, error) {
	return service.sign(service.refresh, identity)
}

// VerifyAccess checks an access token and returns its payload.
func (service *TokenService) VerifyAccess(token string) (*Claims, error) {
	return service.verify(service.access, token)
}

// VerifyRefresh checks a refresh token and returns its payload.
func (service *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return service.verify(service.refresh, token)
}

func (service *TokenService) sign(ring keyRing, identity Identity) (SignedToken, error) {
	tokenID, err := uuid.NewV7()
	if err != nil {
		return SignedToken{}, fmt.Errorf("sec: failed to generate token id: %w", err)
	}

	issuedAt := service.now()
	expiresAt := issuedAt.Add(ring.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   identity.SubjectID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: identity.Email,
		Role:  identity.Role,
		Type:  ring.tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ring.secret)
	if err != nil {
		return SignedToken{}, fmt.Errorf("sec: failed to sign token: %w", err)
	}

	// The embedded expiry has second precision.
	return SignedToken{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (service *TokenService) verify(ring keyRing, token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(service.issuer),
		jwt.WithTimeFunc(service.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return ring.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.Type != ring.tokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.Type)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: incomplete payload", ErrTokenInvalid)
	}

	return claims, nil
}

// classify maps jwt errors onto the package failure kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
