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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://eduai.example.com
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Remote.GetTimeout())
	assert.Equal(t, 30*time.Second, cfg.Sync.GetPollInterval())
	assert.Equal(t, 0, cfg.Sync.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://eduai.example.com
  timeout: 5s
sync:
  poll_interval: 10s
  max_attempts: 3
scheduler:
  enabled: true
  interval: "@every 1m"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Remote.GetTimeout())
	assert.Equal(t, 10*time.Second, cfg.Sync.GetPollInterval())
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoadConfigRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
