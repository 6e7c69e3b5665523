package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	t.Setenv("LIVESCORE_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", cfg.BackendBaseURL)
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.True(t, cfg.AutoSelect)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIVESCORE_CONFIG", "")
	t.Setenv("LIVESCORE_BACKEND_BASE_URL", "http://backend:9000/api")
	t.Setenv("LIVESCORE_MAX_RECONNECT_ATTEMPTS", "0")
	t.Setenv("LIVESCORE_POLL_INTERVAL", "5s")
	t.Setenv("LIVESCORE_AUTO_SELECT", "false")
	t.Setenv("LIVESCORE_MATCH_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000/api", cfg.BackendBaseURL)
	assert.Equal(t, 0, cfg.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.False(t, cfg.AutoSelect)
	assert.Equal(t, int64(42), cfg.MatchID)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "livescore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend_ws_url: "ws://push:8081/ws/websocket"
reconnect_delay: 1s
log_level: debug
`), 0o600))
	t.Setenv("LIVESCORE_CONFIG", path)
	t.Setenv("LIVESCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://push:8081/ws/websocket", cfg.BackendWSURL)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.BackendBaseURL = ""
	cfg.MaxReconnectAttempts = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend_base_url")
	assert.Contains(t, err.Error(), "max_reconnect_attempts")
}

func TestLoadSportTable(t *testing.T) {
	table, err := LoadSportTable("sports.yaml")
	require.NoError(t, err)
	assert.Contains(t, table.SetBased, "Badminton")
	assert.Contains(t, table.Continuous, "Football")

	_, err = LoadSportTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
