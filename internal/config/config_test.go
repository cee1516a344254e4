package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout.Duration())
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Duration())
	assert.Equal(t, 256, cfg.Cache.MaxEntries)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8099
logging:
  level: debug
  format: console
inference:
  base_url: http://localhost:11434/v1
  model: llama3
  timeout: 5s
cache:
  ttl: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8099, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Inference.BaseURL)
	assert.Equal(t, "llama3", cfg.Inference.Model)
	assert.Equal(t, 5*time.Second, cfg.Inference.Timeout.Duration())
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL.Duration())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9180, cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8099\n"), 0600))

	t.Setenv("REFLECTD_SERVER_PORT", "8200")
	t.Setenv("REFLECTD_INFERENCE_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8200, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Inference.APIKey.Value())
}

func TestLoad_InvalidLevel(t *testing.T) {
	t.Setenv("REFLECTD_LOGGING_LEVEL", "verbose")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-super-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-super-secret", s.Value())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")

	assert.Equal(t, "", Secret("").String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("2m30s")))
	assert.Equal(t, 150*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-1s")))
	require.Error(t, d.UnmarshalText([]byte("bogus")))
}
