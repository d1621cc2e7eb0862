package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "upstream:\n  base_url: https://api.example/\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example/", cfg.Upstream.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, DefaultPaths(), cfg.Upstream.Paths)
	assert.Equal(t, 30*time.Second, cfg.Dashboard.PollInterval)
	assert.Equal(t, 10, cfg.Dashboard.PageLimit)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Server.CacheTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, "lablog-reset", cfg.Admin.ResetSecret)
}

func TestLoad_KeepsConfiguredPaths(t *testing.T) {
	cfg, err := Load(writeConfig(t, "upstream:\n  paths:\n    login: /auth/v2/login\n"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/v2/login", cfg.Upstream.Paths.Login)
	assert.Equal(t, DefaultPaths().Logout, cfg.Upstream.Paths.Logout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONSOLE_API_BASE_URL", "  http://proxy.local  ")
	t.Setenv("CONSOLE_PATH_LIST_LOG_COLLECTIONS", "/jobs")
	t.Setenv("CONSOLE_POLL_INTERVAL_SEC", "5")
	t.Setenv("CONSOLE_DEMO_MODE", "true")
	t.Setenv("CONSOLE_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\nupstream:\n  base_url: https://ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local", cfg.Upstream.BaseURL)
	assert.Equal(t, "/jobs", cfg.Upstream.Paths.ListLogCollections)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.PollInterval)
	assert.True(t, cfg.Demo.Enabled)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoad_EmptyBaseURLFromEnvironment(t *testing.T) {
	t.Setenv("CONSOLE_API_BASE_URL", "")
	cfg, err := Load(writeConfig(t, "upstream:\n  base_url: https://api.example\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Upstream.BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated\n"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "lablog_session", cfg.Session.CookieName)
	assert.Equal(t, 60, cfg.Session.EphemeralTTLMinutes)
	assert.Equal(t, 30, cfg.Session.RememberDays)
	assert.Equal(t, 15, cfg.Dashboard.IdleMinutes)
}
