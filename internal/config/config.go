// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PersistMode selects how refresh-token records reach the store during issuance.
type PersistMode string

const (
	// PersistAwait blocks the issuance call until the store write completes.
	PersistAwait PersistMode = "await"
	// PersistDetach submits the store write on a detached goroutine; failures
	// are logged and counted, never surfaced to the caller.
	PersistDetach PersistMode = "detach"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required when REFRESH_STORE=postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis address (host:port); required when REFRESH_STORE=redis.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RefreshStore selects the refresh-token store backend: postgres, redis, or memory.
	RefreshStore string `mapstructure:"REFRESH_STORE"`
	// JWTSecret is the shared HMAC signing secret; required, no default.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim stamped on every issued token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h"). Must exceed JWT_ACCESS_TTL.
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// PBKDF2Iterations is the iteration count used when hashing new passwords.
	PBKDF2Iterations int `mapstructure:"PBKDF2_ITERATIONS"`
	// EnforceAccountStatus, when true, rejects disabled accounts at login.
	EnforceAccountStatus bool `mapstructure:"ENFORCE_ACCOUNT_STATUS"`
	// RefreshPersistMode is "await" or "detach"; see PersistMode.
	RefreshPersistMode string `mapstructure:"REFRESH_PERSIST_MODE"`
	// OTLPEndpoint is the OTLP collector endpoint (e.g. http://localhost:4317); empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Parsed at Load; see AccessTTL and RefreshTTL.
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REFRESH_STORE", "postgres")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("PBKDF2_ITERATIONS", 210000)
	v.SetDefault("ENFORCE_ACCOUNT_STATUS", false)
	v.SetDefault("REFRESH_PERSIST_MODE", string(PersistAwait))
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	switch cfg.RefreshStore {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when REFRESH_STORE=postgres")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set when REFRESH_STORE=redis")
		}
	case "memory":
	default:
		return nil, errors.New("config: REFRESH_STORE must be postgres, redis, or memory")
	}
	switch PersistMode(cfg.RefreshPersistMode) {
	case PersistAwait, PersistDetach:
	default:
		return nil, errors.New("config: REFRESH_PERSIST_MODE must be await or detach")
	}
	if cfg.PBKDF2Iterations < 1000 {
		return nil, errors.New("config: PBKDF2_ITERATIONS must be at least 1000")
	}
	accessTTL, err := parseTTL("JWT_ACCESS_TTL", cfg.JWTAccessTTL)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := parseTTL("JWT_REFRESH_TTL", cfg.JWTRefreshTTL)
	if err != nil {
		return nil, err
	}
	cfg.accessTTL, cfg.refreshTTL = accessTTL, refreshTTL
	if cfg.refreshTTL <= cfg.accessTTL {
		return nil, errors.New("config: JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL")
	}

	return &cfg, nil
}

// parseTTL parses a lifetime key as a Go duration string (e.g. "15m", "168h").
// A bare number like "3600" is not a valid duration and is rejected rather than
// silently replaced, so a misconfigured lifetime fails at startup.
func parseTTL(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid duration %q (use a unit, e.g. \"15m\" or \"168h\")", key, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %q", key, value)
	}
	return d, nil
}

// AccessTTL returns the access token lifetime validated at Load.
func (c *Config) AccessTTL() time.Duration {
	return c.accessTTL
}

// RefreshTTL returns the refresh token lifetime validated at Load.
func (c *Config) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// PersistModeValue returns RefreshPersistMode as a PersistMode.
func (c *Config) PersistModeValue() PersistMode {
	return PersistMode(c.RefreshPersistMode)
}
