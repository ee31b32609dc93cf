// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, cache, token service) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage and cache driver names.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// minSecretLength is the shortest accepted HS256 secret, in bytes.
const minSecretLength = 32

// # Configuration Schema

// Config holds all runtime configuration for the Yomira CMS API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Identity and refresh-token persistence
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`

	// MigrationPath replaces the embedded migrations with a directory on disk.
	MigrationPath string `env:"MIGRATION_PATH"`

	// Expiring key-value cache (rate-limit counters)
	CacheDriver   string `env:"CACHE_DRIVER"    envDefault:"memory"`
	RedisURL      string `env:"REDIS_URL"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Token signing
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET,required,unset"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET,required,unset"`
	JWTAccessTTL     time.Duration `env:"JWT_ACCESS_TTL"  envDefault:"15m"`
	JWTRefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"7d"`
	JWTIssuer        string        `env:"JWT_ISSUER"      envDefault:"cms.yomira.app"`

	// Password hashing pool
	BcryptCost  int `env:"BCRYPT_COST"  envDefault:"12"`
	HashWorkers int `env:"HASH_WORKERS" envDefault:"0"`

	// Fixed-window request ceilings per bucket
	RateLimitAnonymous     int           `env:"RATE_LIMIT_ANONYMOUS"     envDefault:"100"`
	RateLimitAuthenticated int           `env:"RATE_LIMIT_AUTHENTICATED" envDefault:"1000"`
	RateLimitAPIKey        int           `env:"RATE_LIMIT_API_KEY"       envDefault:"10000"`
	RateLimitWindow        time.Duration `env:"RATE_LIMIT_WINDOW"        envDefault:"1h"`

	// APIKeys are raw keys granted the apiKey bucket, registered at startup.
	APIKeys []string `env:"API_KEYS,unset" envSeparator:","`

	// TrustedProxies lists the CIDRs (or bare IPs) whose X-Real-IP and
	// X-Forwarded-For headers are believed. Empty trusts no one.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Token-bucket guard in front of login and register
	AuthBurstRPS float64 `env:"AUTH_BURST_RPS" envDefault:"5"`
	AuthBurst    int     `env:"AUTH_BURST"     envDefault:"10"`

	// Roles a client may request at registration
	SelfAssignableRoles []string `env:"SELF_ASSIGNABLE_ROLES" envDefault:"viewer,author" envSeparator:","`

	// Background removal of expired refresh records
	TokenPruneInterval time.Duration `env:"TOKEN_PRUNE_INTERVAL" envDefault:"1h"`

	// Cross-Origin Resource Sharing
	ExtraOrigins []string `env:"EXTRA_ORIGINS" envSeparator:","`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Durations additionally accept a day suffix ("7d").
	options := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): func(value string) (any, error) {
				return ParseDuration(value)
			},
		},
	}

	if err := env.ParseWithOptions(cfg, options); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var problems []error

	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.CacheDriver {
	case DriverRedis:
		if c.RedisURL == "" {
			problems = append(problems, errors.New("REDIS_URL is required when CACHE_DRIVER=redis"))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Errorf("unknown CACHE_DRIVER %q", c.CacheDriver))
	}

	if len(c.JWTAccessSecret) < minSecretLength || len(c.JWTRefreshSecret) < minSecretLength {
		problems = append(problems, fmt.Errorf("JWT secrets must be at least %d bytes", minSecretLength))
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		problems = append(problems, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 || c.RateLimitWindow <= 0 {
		problems = append(problems, errors.New("durations must be positive"))
	}
	if c.RateLimitAnonymous <= 0 || c.RateLimitAuthenticated <= 0 || c.RateLimitAPIKey <= 0 {
		problems = append(problems, errors.New("rate-limit ceilings must be positive"))
	}
	if c.TokenPruneInterval <= 0 {
		problems = append(problems, errors.New("TOKEN_PRUNE_INTERVAL must be positive"))
	}
	if c.AuthBurstRPS <= 0 || c.AuthBurst <= 0 {
		problems = append(problems, errors.New("AUTH_BURST_RPS and AUTH_BURST must be positive"))
	}
	if c.HashWorkers < 0 {
		problems = append(problems, errors.New("HASH_WORKERS must not be negative"))
	}
	if c.RedisPoolSize <= 0 {
		problems = append(problems, errors.New("REDIS_POOL_SIZE must be positive"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		problems = append(problems, err)
	}

	return errors.Join(problems...)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", raw)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// ParseDuration extends [time.ParseDuration] with a whole-day unit, e.g. "7d".
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		count, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(count) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
