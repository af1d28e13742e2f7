package session

import (
	"os"
	"strings"
	"time"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is set as the "iss" claim and required on verify.
	Issuer string

	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens.
	RefreshTokenTTL time.Duration
}

// DefaultConfig returns the baseline: 15 minute access tokens, 7 day refresh tokens.
func DefaultConfig() Config {
	return Config{
		Issuer:          "parley",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - PARLEY_AUTH_ISSUER
//   - PARLEY_AUTH_ACCESS_TTL
//   - PARLEY_AUTH_REFRESH_TTL
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("PARLEY_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("PARLEY_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("PARLEY_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants: positive TTLs and access <= refresh.
func (c Config) Validate() error {
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrConfig
	}
	if c.AccessTokenTTL > c.RefreshTokenTTL {
		return ErrConfig
	}
	return nil
}
