// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ashureev/formcaptcha/internal/store"
)

// Config holds all application configuration.
type Config struct {
	Port           string        `env:"PORT"            envDefault:"8080"`
	FrontendURL    string        `env:"FRONTEND_URL"`
	StoreBackend   string        `env:"STORE_BACKEND"   envDefault:"sqlite"`
	DBPath         string        `env:"DB_PATH"         envDefault:"./data/captcha.db"`
	BadgerPath     string        `env:"BADGER_PATH"     envDefault:"./data/badger"`
	SessionTTL     time.Duration `env:"SESSION_TTL"     envDefault:"60m"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL"  envDefault:"5m"`
	FormsFile      string        `env:"FORMS_FILE"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case store.BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case store.BackendBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", store.BackendSQLite, store.BackendBadger, c.StoreBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// StorePath returns the location of the configured backend.
func (c *Config) StorePath() string {
	if c.StoreBackend == store.BackendBadger {
		return c.BadgerPath
	}
	return c.DBPath
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// Origins returns the CORS allow list: ALLOWED_ORIGINS when set, otherwise
// the frontend URL, otherwise local development origins.
func (c *Config) Origins() []string {
	if len(c.AllowedOrigins) > 0 {
		return c.AllowedOrigins
	}
	if c.FrontendURL != "" {
		return []string{c.FrontendURL}
	}
	return []string{"http://localhost:" + c.Port, "http://127.0.0.1:" + c.Port}
}
