package authengine

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full engine configuration. Every field can be populated
// from the environment via [LoadConfig] or set programmatically; zero
// values fall back to the documented defaults during [New].
type Config struct {
	JWT      JWTConfig      `envPrefix:"AUTH_JWT_"`
	Session  SessionConfig  `envPrefix:"AUTH_SESSION_"`
	Confirm  ConfirmConfig  `envPrefix:"AUTH_CONFIRM_"`
	Rate     RateConfig     `envPrefix:"AUTH_RATE_"`
	Audit    AuditConfig    `envPrefix:"AUTH_AUDIT_"`
	Password PasswordConfig `envPrefix:"AUTH_PASSWORD_"`
}

// JWTConfig selects the signing method, key material, and token lifetimes.
type JWTConfig struct {
	// Method is "hs256" or "es256".
	Method string `env:"METHOD" envDefault:"hs256"`
	// Secret is the HMAC key for hs256.
	Secret string `env:"SECRET,unset"`
	// PrivateKeyPEM / PublicKeyPEM hold ECDSA keys for es256.
	PrivateKeyPEM string        `env:"PRIVATE_KEY_PEM,unset"`
	PublicKeyPEM  string        `env:"PUBLIC_KEY_PEM"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

// SessionConfig tunes the per-user session hash.
type SessionConfig struct {
	Prefix string `env:"PREFIX" envDefault:"session_mapping"`
	// TTL covers the whole session collection and is refreshed on every
	// write. Default matches the historical 15,638,400 seconds.
	TTL time.Duration `env:"TTL" envDefault:"4344h"`
}

// ConfirmConfig tunes the one-time confirmation challenges shared by email
// verification and password reset.
type ConfirmConfig struct {
	KeyLifetime    time.Duration `env:"KEY_LIFETIME" envDefault:"30m"`
	GenInterval    time.Duration `env:"GEN_INTERVAL" envDefault:"120s"`
	MaxGenerations int           `env:"MAX_GENERATIONS" envDefault:"3"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	CodeTTL        time.Duration `env:"CODE_TTL" envDefault:"30m"`
}

// RateConfig tunes login and refresh throttling. Zero budgets disable the
// corresponding throttle.
type RateConfig struct {
	MaxLoginFailures int           `env:"MAX_LOGIN_FAILURES" envDefault:"10"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	ThrottleByIP     bool          `env:"THROTTLE_BY_IP" envDefault:"true"`
	MaxRefreshCalls  int           `env:"MAX_REFRESH_CALLS" envDefault:"30"`
	RefreshWindow    time.Duration `env:"REFRESH_WINDOW" envDefault:"1m"`
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED" envDefault:"false"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

// PasswordConfig carries the password acceptance policy. Hashing cost
// parameters belong to the [Hasher] implementation, not here.
type PasswordConfig struct {
	MinLength int `env:"MIN_LENGTH" envDefault:"10"`
	MaxLength int `env:"MAX_LENGTH" envDefault:"128"`
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one exists, and validates the result.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate applies guardrails that catch configurations which would come up
// but misbehave.
func (c Config) Validate() error {
	switch c.JWT.Method {
	case "hs256":
		if c.JWT.Secret == "" {
			return errors.New("config: hs256 requires AUTH_JWT_SECRET")
		}
		if len(c.JWT.Secret) < 32 {
			return errors.New("config: jwt secret must be at least 32 bytes")
		}
	case "es256":
		if c.JWT.PublicKeyPEM == "" {
			return errors.New("config: es256 requires AUTH_JWT_PUBLIC_KEY_PEM")
		}
	default:
		return fmt.Errorf("config: unknown jwt method %q", c.JWT.Method)
	}

	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("config: refresh TTL must not be shorter than access TTL")
	}
	if c.Session.TTL > 0 && c.Session.TTL < c.JWT.RefreshTTL {
		return errors.New("config: session TTL must cover the refresh TTL")
	}
	if c.Password.MinLength < 8 {
		return errors.New("config: password min length must be at least 8")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("config: password max length below min length")
	}
	return nil
}
