package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every runtime setting, sourced from IC_* environment
// variables.
type Config struct {
	Addr        string
	DatabaseDSN string

	SigningSecret   string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CORSOrigin   string
	CookieSecure bool
	ChaosEnabled bool

	// Seed admin account, provisioned at startup when set.
	AdminEmail    string
	AdminPassword string
}

// Load reads configuration from the environment. Missing values fall back to
// defaults; malformed durations and booleans are errors. The signing secret
// is deliberately not validated here: the auth service refuses to construct
// without one, which aborts startup with a configuration error.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:          envString("IC_HTTP_ADDR", ":8080"),
		DatabaseDSN:   envString("IC_PG_DSN", ""),
		SigningSecret: envString("IC_AUTH_SECRET", ""),
		Issuer:        envString("IC_AUTH_ISSUER", "IncidentCommanderAPI"),
		Audience:      envString("IC_AUTH_AUDIENCE", "IncidentCommanderClient"),
		CORSOrigin:    envString("IC_CORS_ORIGIN", "http://localhost:5173"),
		AdminEmail:    envString("IC_ADMIN_EMAIL", ""),
		AdminPassword: envString("IC_ADMIN_PASSWORD", ""),
	}

	var err error
	if cfg.AccessTokenTTL, err = envDuration("IC_ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = envDuration("IC_REFRESH_TOKEN_TTL", 60*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CookieSecure, err = envBool("IC_COOKIE_SECURE", true); err != nil {
		return nil, err
	}
	if cfg.ChaosEnabled, err = envBool("IC_CHAOS_ENABLED", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}
