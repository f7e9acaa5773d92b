package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "./data/blobs", cfg.Storage.Root)
	assert.Equal(t, 300, cfg.Queue.VisibilityTimeoutSecs)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30, cfg.Queue.InitialBackoffSecs)
	assert.Equal(t, 900, cfg.Queue.MaxBackoffSecs)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.InDelta(t, 2.0, cfg.Worker.PollRatePerS, 0.001)
	assert.Equal(t, "pdftotext", cfg.Parser.PdfToTextPath)
	assert.InDelta(t, 0.2, cfg.Extract.MaxRowFailureRatio, 0.001)
	assert.InDelta(t, 0.90, cfg.Resolve.AutoThreshold, 0.001)
	assert.InDelta(t, 0.60, cfg.Resolve.ReviewThreshold, 0.001)
	assert.Equal(t, 6, cfg.Anomaly.MinHistory)
	assert.Equal(t, 12, cfg.Anomaly.Window)
	assert.InDelta(t, 2.0, cfg.Anomaly.ZThreshold, 0.001)
	assert.InDelta(t, 5.0, cfg.Anomaly.CThreshold, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: pipeline.db
log:
  level: debug
  format: console
server:
  port: 9090
queue:
  max_attempts: 5
anomaly:
  class_thresholds:
    lease_up:
      z_threshold: 3.5
      cusum_threshold: 9.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pipeline.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	require.Contains(t, cfg.Anomaly.ClassThresholds, "lease_up")
	assert.InDelta(t, 3.5, cfg.Anomaly.ClassThresholds["lease_up"].ZThreshold, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 300, cfg.Queue.VisibilityTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PROPFIN_STORE_DRIVER", "postgres")
	t.Setenv("PROPFIN_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("PROPFIN_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestVisibilityTimeoutDuration(t *testing.T) {
	q := QueueConfig{VisibilityTimeoutSecs: 90}
	assert.Equal(t, "1m30s", q.VisibilityTimeout().String())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
