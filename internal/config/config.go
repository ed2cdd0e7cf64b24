// Package config loads skyfetch settings from an optional TOML file.
// Command-line flags and the OPENSKY_CLIENT_ID/OPENSKY_CLIENT_SECRET
// environment variables override file values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is consulted when no --config flag is given.
const DefaultPath = "skyfetch.toml"

// Config represents the application configuration
type Config struct {
	API     APIConfig     `toml:"api"`
	Fetch   FetchConfig   `toml:"fetch"`
	Storage StorageConfig `toml:"storage"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig holds OpenSky endpoint and credential settings
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	AuthURL        string `toml:"auth_url"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// FetchConfig holds orchestrator tuning
type FetchConfig struct {
	MaxConcurrent  int    `toml:"max_concurrent"`
	RateLimit      string `toml:"rate_limit"`
	MaxAttempts    int    `toml:"max_attempts"`
	InitialBackoff string `toml:"initial_backoff"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// ServerConfig holds the optional status server settings
type ServerConfig struct {
	StatusAddr string `toml:"status_addr"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			TimeoutSeconds: 30,
		},
		Fetch: FetchConfig{
			MaxConcurrent:  5,
			RateLimit:      "500ms",
			MaxAttempts:    5,
			InitialBackoff: "1s",
		},
		Storage: StorageConfig{
			DBPath: "flights.db",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load reads configuration from the given TOML file over the defaults. An
// empty path falls back to DefaultPath when that file exists; a missing
// explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	// Environment credentials take precedence over the file
	if v := os.Getenv("OPENSKY_CLIENT_ID"); v != "" {
		cfg.API.ClientID = v
	}
	if v := os.Getenv("OPENSKY_CLIENT_SECRET"); v != "" {
		cfg.API.ClientSecret = v
	}

	return cfg, nil
}

// Timeout returns the HTTP client timeout.
func (c *APIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitInterval parses the configured minimum inter-request spacing.
func (c *FetchConfig) RateLimitInterval() (time.Duration, error) {
	return parseDuration(c.RateLimit, 500*time.Millisecond)
}

// BackoffInterval parses the configured initial retry backoff.
func (c *FetchConfig) BackoffInterval() (time.Duration, error) {
	return parseDuration(c.InitialBackoff, time.Second)
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	return d, nil
}
