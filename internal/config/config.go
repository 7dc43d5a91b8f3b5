package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthMode selects how the API treats bearer tokens. It is always an
// explicit value: a missing REGISTRY_AUTH_MODE defaults to enforcement,
// and disabling auth requires the literal string "disabled".
type AuthMode string

const (
	AuthEnforced AuthMode = "enforced"
	AuthDisabled AuthMode = "disabled"
)

// Config carries every runtime knob. It is loaded once at startup and
// passed down by value; nothing re-reads the environment afterwards.
type Config struct {
	ListenAddr string
	PGDSN      string

	AuthMode      AuthMode
	TokenSecret   string
	TokenMaxUses  int
	TokenLifetime time.Duration

	RateLimit       int
	RateLimitWindow time.Duration

	RegexMaxLength int
	RegexTimeout   time.Duration

	QueryTimeout    time.Duration
	MaxPageSize     int
	MaxOffset       int
	MaxTotalResults int

	MaxBodyBytes int64
}

// Defaults mirror the limits the service shipped with.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		AuthMode:        AuthEnforced,
		TokenMaxUses:    1000,
		TokenLifetime:   10 * time.Hour,
		RateLimit:       100,
		RateLimitWindow: time.Minute,
		RegexMaxLength:  1000,
		RegexTimeout:    2 * time.Second,
		QueryTimeout:    5 * time.Second,
		MaxPageSize:     100,
		MaxOffset:       10000,
		MaxTotalResults: 1000,
		MaxBodyBytes:    1 << 20,
	}
}

// Load builds a Config from REGISTRY_* environment variables on top of the
// defaults. Invalid numeric values fail loudly instead of being ignored.
func Load() (Config, error) {
	cfg := Default()

	if v := strings.TrimSpace(os.Getenv("REGISTRY_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.PGDSN = strings.TrimSpace(os.Getenv("REGISTRY_PG_DSN"))
	cfg.TokenSecret = strings.TrimSpace(os.Getenv("REGISTRY_AUTH_SECRET"))

	switch mode := strings.TrimSpace(strings.ToLower(os.Getenv("REGISTRY_AUTH_MODE"))); mode {
	case "", string(AuthEnforced):
		cfg.AuthMode = AuthEnforced
	case string(AuthDisabled):
		cfg.AuthMode = AuthDisabled
	default:
		return Config{}, fmt.Errorf("config: unknown REGISTRY_AUTH_MODE %q", mode)
	}
	if cfg.AuthMode == AuthEnforced && cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("config: REGISTRY_AUTH_SECRET is required when auth is enforced")
	}

	var err error
	if cfg.TokenMaxUses, err = intEnv("REGISTRY_TOKEN_MAX_USES", cfg.TokenMaxUses); err != nil {
		return Config{}, err
	}
	if cfg.TokenLifetime, err = durationEnv("REGISTRY_TOKEN_LIFETIME", cfg.TokenLifetime); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = intEnv("REGISTRY_RATE_LIMIT", cfg.RateLimit); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWindow, err = durationEnv("REGISTRY_RATE_WINDOW", cfg.RateLimitWindow); err != nil {
		return Config{}, err
	}
	if cfg.RegexMaxLength, err = intEnv("REGISTRY_REGEX_MAX_LENGTH", cfg.RegexMaxLength); err != nil {
		return Config{}, err
	}
	if cfg.RegexTimeout, err = durationEnv("REGISTRY_REGEX_TIMEOUT", cfg.RegexTimeout); err != nil {
		return Config{}, err
	}
	if cfg.QueryTimeout, err = durationEnv("REGISTRY_QUERY_TIMEOUT", cfg.QueryTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxPageSize, err = intEnv("REGISTRY_MAX_PAGE_SIZE", cfg.MaxPageSize); err != nil {
		return Config{}, err
	}
	if cfg.MaxOffset, err = intEnv("REGISTRY_MAX_OFFSET", cfg.MaxOffset); err != nil {
		return Config{}, err
	}
	if cfg.MaxTotalResults, err = intEnv("REGISTRY_MAX_TOTAL_RESULTS", cfg.MaxTotalResults); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", name, raw)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive duration, got %q", name, raw)
	}
	return v, nil
}
