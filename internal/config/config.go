// Package config provides configuration loading for reflectd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the reflectd daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Inference InferenceConfig `koanf:"inference"`
	Store     StoreConfig     `koanf:"store"`
	Cache     CacheConfig     `koanf:"cache"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Host is the bind address (default 127.0.0.1).
	Host string `koanf:"host"`

	// Port is the HTTP listen port (default 9180).
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `koanf:"level"`

	// Format is json or console (default json).
	Format string `koanf:"format"`
}

// InferenceConfig controls the external inference endpoint.
type InferenceConfig struct {
	// BaseURL is the OpenAI-compatible endpoint URL.
	BaseURL string `koanf:"base_url"`

	// Model is the model identifier passed to the endpoint.
	Model string `koanf:"model"`

	// APIKey authenticates against the endpoint. Redacted in logs.
	APIKey Secret `koanf:"api_key"`

	// Timeout is the maximum wait per inference call (default 30s).
	// Expiry surfaces to callers as a Timeout failure, not an exception.
	Timeout Duration `koanf:"timeout"`

	// RatePerSecond caps outbound inference calls (default 1).
	RatePerSecond float64 `koanf:"rate_per_second"`

	// RateBurst is the rate limiter burst size (default 3).
	RateBurst int `koanf:"rate_burst"`
}

// StoreConfig controls the backing store.
type StoreConfig struct {
	// Path is the SQLite database file. Empty selects the in-memory store.
	Path string `koanf:"path"`
}

// CacheConfig controls the session result cache.
type CacheConfig struct {
	// TTL is the freshness window for cached outcomes (default 5m).
	TTL Duration `koanf:"ttl"`

	// MaxEntries bounds the per-user entry count (default 256).
	MaxEntries int `koanf:"max_entries"`
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = "gpt-4o-mini"
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = Duration(30 * time.Second)
	}
	if cfg.Inference.RatePerSecond == 0 {
		cfg.Inference.RatePerSecond = 1
	}
	if cfg.Inference.RateBurst == 0 {
		cfg.Inference.RateBurst = 3
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(5 * time.Minute)
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 256
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Inference.RatePerSecond < 0 {
		return fmt.Errorf("inference.rate_per_second cannot be negative")
	}
	if c.Inference.RateBurst < 1 {
		return fmt.Errorf("inference.rate_burst must be at least 1")
	}
	if c.Cache.TTL.Duration() <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	return nil
}
