// Package config reads process settings from SHOPLIST_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	LogFormat     string
	AdminUsername string
	AdminPassword string
	SeedCatalog   bool
	SessionTTL    time.Duration
	RetryAttempts uint64
	LoginRate     int
}

// Load reads the environment, applying defaults for unset variables.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:          stringOr(getenv("SHOPLIST_PORT"), "8080"),
		DBPath:        stringOr(getenv("SHOPLIST_DB_PATH"), "shoplist.db"),
		LogLevel:      stringOr(getenv("SHOPLIST_LOG_LEVEL"), "info"),
		LogFormat:     stringOr(getenv("SHOPLIST_LOG_FORMAT"), "text"),
		AdminUsername: stringOr(getenv("SHOPLIST_ADMIN_USERNAME"), "admin"),
		AdminPassword: getenv("SHOPLIST_ADMIN_PASSWORD"),
	}

	var errs []error
	var err error

	if cfg.SeedCatalog, err = boolOr(getenv("SHOPLIST_SEED_CATALOG"), true); err != nil {
		errs = append(errs, fmt.Errorf("SHOPLIST_SEED_CATALOG: %w", err))
	}
	if cfg.SessionTTL, err = durationOr(getenv("SHOPLIST_SESSION_TTL"), 30*24*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("SHOPLIST_SESSION_TTL: %w", err))
	} else if cfg.SessionTTL <= 0 {
		errs = append(errs, errors.New("SHOPLIST_SESSION_TTL: must be positive"))
	}
	if cfg.RetryAttempts, err = uintOr(getenv("SHOPLIST_RETRY_ATTEMPTS"), 3); err != nil {
		errs = append(errs, fmt.Errorf("SHOPLIST_RETRY_ATTEMPTS: %w", err))
	}
	rateVal, err := uintOr(getenv("SHOPLIST_LOGIN_RATE"), 10)
	if err != nil {
		errs = append(errs, fmt.Errorf("SHOPLIST_LOGIN_RATE: %w", err))
	} else if rateVal == 0 {
		errs = append(errs, errors.New("SHOPLIST_LOGIN_RATE: must be at least 1"))
	}
	cfg.LoginRate = int(rateVal)

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		errs = append(errs, fmt.Errorf("SHOPLIST_PORT: %w", err))
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("SHOPLIST_LOG_FORMAT: unknown format %q", cfg.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func stringOr(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func boolOr(v string, def bool) (bool, error) {
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func durationOr(v string, def time.Duration) (time.Duration, error) {
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

func uintOr(v string, def uint64) (uint64, error) {
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	return strconv.ParseUint(v, 10, 32)
}
