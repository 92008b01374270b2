package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "https://aistudio.google.com/", cfg.Browser.AIStudioURL)
	assert.True(t, cfg.Browser.HeadlessMode)
	assert.Equal(t, 3, cfg.Browser.InitialPoolSize)
	assert.Equal(t, 10, cfg.Browser.MaxPoolSize)
	assert.Equal(t, 30*time.Second, cfg.Browser.OperationTimeout)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 5, cfg.Performance.MaxConcurrentRequests)
	assert.Equal(t, 5*time.Minute, cfg.Performance.CleanupDelay)
	assert.Contains(t, cfg.Models.Supported, "Gemini 1.5 Pro")
	assert.Equal(t, "Gemini 1.5 Pro", cfg.Models.Default)
	assert.True(t, cfg.KeepAlive.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
browser:
  initial_pool_size: 1
  operation_timeout: 45s
models:
  default: Gemini 2.0 Flash
  supported:
    - Gemini 2.0 Flash
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Browser.InitialPoolSize)
	assert.Equal(t, 45*time.Second, cfg.Browser.OperationTimeout)
	assert.Equal(t, "Gemini 2.0 Flash", cfg.Models.Default)
	assert.Equal(t, []string{"Gemini 2.0 Flash"}, cfg.Models.Supported)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("AISTUDIO_URL", "https://example.test/")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "2")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "https://example.test/", cfg.Browser.AIStudioURL)
	assert.False(t, cfg.Browser.HeadlessMode)
	assert.Equal(t, 2, cfg.Performance.MaxConcurrentRequests)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://cache:6379")

	assert.Equal(t, "url: redis://cache:6379", expandEnvVars("url: ${TEST_REDIS_URL}"))
	assert.Equal(t, "url: redis://cache:6379", expandEnvVars("url: $TEST_REDIS_URL"))
	// Unset variables are left untouched.
	assert.Equal(t, "url: ${NOT_SET_ANYWHERE}", expandEnvVars("url: ${NOT_SET_ANYWHERE}"))
}

func TestAPIKeysFromEnv(t *testing.T) {
	t.Setenv("API_KEYS", "sk-alpha, sk-beta ,,sk-gamma")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, []string{"sk-alpha", "sk-beta", "sk-gamma"}, cfg.API.Keys)
}
