package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skyfetch.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5, cfg.Fetch.MaxConcurrent)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, "flights.db", cfg.Storage.DBPath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout())

	rate, err := cfg.Fetch.RateLimitInterval()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, rate)

	backoff, err := cfg.Fetch.BackoffInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Second, backoff)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[api]
client_id = "file-client"
client_secret = "file-secret"
timeout_seconds = 10

[fetch]
max_concurrent = 3
rate_limit = "250ms"

[storage]
db_path = "/tmp/test-flights.db"

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.API.ClientID)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout())
	assert.Equal(t, 3, cfg.Fetch.MaxConcurrent)
	assert.Equal(t, "/tmp/test-flights.db", cfg.Storage.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)

	rate, err := cfg.Fetch.RateLimitInterval()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, rate)

	// Unset sections keep their defaults
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[api]
client_id = "file-client"
client_secret = "file-secret"
`)
	t.Setenv("OPENSKY_CLIENT_ID", "env-client")
	t.Setenv("OPENSKY_CLIENT_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-client", cfg.API.ClientID)
	assert.Equal(t, "env-secret", cfg.API.ClientSecret)
}

func TestLoadEnvWithoutFile(t *testing.T) {
	t.Setenv("OPENSKY_CLIENT_ID", "env-client")
	t.Setenv("OPENSKY_CLIENT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-client", cfg.API.ClientID)
	assert.Equal(t, "env-secret", cfg.API.ClientSecret)
}

func TestLoadExplicitMissingPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, `[api`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationValidation(t *testing.T) {
	cfg := Default()
	cfg.Fetch.RateLimit = "not-a-duration"
	_, err := cfg.Fetch.RateLimitInterval()
	assert.Error(t, err)

	cfg.Fetch.InitialBackoff = "-1s"
	_, err = cfg.Fetch.BackoffInterval()
	assert.Error(t, err)

	cfg.Fetch.RateLimit = ""
	rate, err := cfg.Fetch.RateLimitInterval()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, rate)
}
