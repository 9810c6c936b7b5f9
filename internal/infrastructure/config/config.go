package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Audit     AuditConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string `envconfig:"PORT" default:"8000"`
	Host          string `envconfig:"HOST" default:"0.0.0.0"`
	MaxConcurrent int64  `envconfig:"AUDIT_MAX_CONCURRENT" default:"2"`

	// How long a log watcher waits for its run to start.
	LogStreamWait time.Duration `envconfig:"LOG_STREAM_WAIT" default:"30s"`
}

// AuditConfig holds settings for the audit runner and its workers.
type AuditConfig struct {
	ChromePath   string        `envconfig:"AUDIT_CHROME_PATH"`
	Headless     bool          `envconfig:"AUDIT_HEADLESS" default:"true"`
	EntryPoint   string        `envconfig:"AUDIT_ENTRY_POINT" default:"navigation"`
	Timeout      time.Duration `envconfig:"AUDIT_TIMEOUT" default:"0s"`
	DrainTimeout time.Duration `envconfig:"AUDIT_DRAIN_TIMEOUT" default:"2s"`
	TempDir      string        `envconfig:"AUDIT_TEMP_DIR"`
	InProcess    bool          `envconfig:"AUDIT_IN_PROCESS" default:"false"`

	// Exclusions overrides the built-in per-runner exclusion table.
	Exclusions string `envconfig:"AUDIT_EXCLUSIONS_FILE"`

	// Consecutive worker faults before the service stops spawning. 0 disables.
	BreakerThreshold uint32        `envconfig:"AUDIT_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"AUDIT_BREAKER_COOLDOWN" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"10"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`

	// Server-wide cap shared by all clients. 0 disables it.
	GlobalRequestsPerSecond int `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0"`
	GlobalBurst             int `envconfig:"RATE_LIMIT_GLOBAL_BURST" default:"0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8000",
			Host:          "0.0.0.0",
			MaxConcurrent: 2,
			LogStreamWait: 30 * time.Second,
		},
		Audit: AuditConfig{
			Headless:         true,
			EntryPoint:       "navigation",
			DrainTimeout:     2 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Enabled:           true,
		},
	}
}
