package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultDatabaseURL = "redis://localhost:6379/0"

// Config holds all configuration for the application.
type Config struct {
	Port        string `envconfig:"PORT" default:"5000"`
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Presence expiry
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"15s"`
	InactivityTimeout time.Duration `envconfig:"INACTIVITY_TIMEOUT" default:"15s"`

	MaxBodyBytes       int64    `envconfig:"MAX_BODY_BYTES" default:"8192"`
	RateLimitWhitelist []string `envconfig:"RATE_LIMIT_WHITELIST"` // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, DATABASE_URL is required.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	whitelist := cfg.RateLimitWhitelist[:0]
	for _, entry := range cfg.RateLimitWhitelist {
		if entry = strings.TrimSpace(entry); entry != "" {
			whitelist = append(whitelist, entry)
		}
	}
	cfg.RateLimitWhitelist = whitelist

	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		cfg.DatabaseURL = defaultDatabaseURL
	}

	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.InactivityTimeout <= 0 {
		return nil, fmt.Errorf("INACTIVITY_TIMEOUT must be positive, got %s", cfg.InactivityTimeout)
	}

	return &cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
