package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  env: dev\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "data/stockpilot.db", cfg.Database.Path)
	assert.Equal(t, "data/equity.db", cfg.Database.EquityLogPath)
	assert.Equal(t, 60, cfg.Market.CacheTTLSeconds)
	assert.Equal(t, "simulated", cfg.Broker.Mode)
	assert.Equal(t, 60, cfg.Worker.IntervalSeconds)
	assert.Equal(t, 1.0, cfg.Worker.DefaultQuantity)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
database:
  path: /tmp/test.db
worker:
  interval_seconds: 5
  default_quantity: 3
broker:
  mode: kis
  kis:
    app_key: key
    app_secret: secret
    account_no: "12345678"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Worker.IntervalSeconds)
	assert.Equal(t, 3.0, cfg.Worker.DefaultQuantity)
	assert.Equal(t, "kis", cfg.Broker.Mode)
	assert.Equal(t, "12345678", cfg.Broker.KIS.AccountNo)
}

func TestLoadRejectsBadBrokerMode(t *testing.T) {
	path := writeConfig(t, "broker:\n  mode: paper\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.mode")
}

func TestLoadRejectsIncompleteKIS(t *testing.T) {
	path := writeConfig(t, "broker:\n  mode: kis\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_key")
}

func TestLoadRejectsTelegramWithoutToken(t *testing.T) {
	path := writeConfig(t, "notify:\n  telegram:\n    enabled: true\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_token")
}

func TestLoadIntervalFallsBackToDefault(t *testing.T) {
	path := writeConfig(t, "worker:\n  interval_seconds: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Worker.IntervalSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
