package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
server:
  port: 9100
catalog:
  path: ./configs/endpoints.yaml
  watch: true
engine:
  failure_threshold: 5
  degraded_threshold: 2s
probe:
  interval: 1m
`), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, ":9100", cfg.Server.Addr())
	assert.Equal(t, "./configs/endpoints.yaml", cfg.Catalog.Path)
	assert.True(t, cfg.Catalog.Watch)
	assert.Equal(t, 5, cfg.Engine.FailureThreshold)
	assert.Equal(t, 2*time.Second, cfg.Engine.DegradedThreshold)
	assert.Equal(t, time.Minute, cfg.Probe.Interval)

	// Дефолты
	assert.Equal(t, 3, cfg.Engine.MaxFailover)
	assert.Equal(t, 100, cfg.Telemetry.BatchSize)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, int32(15), cfg.Database.MaxConns)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CATALOG_PATH", "/etc/mdrouter/endpoints")
	t.Setenv("SERVER_PORT", "9200")
	t.Setenv("ENGINE_CALL_TIMEOUT", "3s")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/etc/mdrouter/endpoints", cfg.Catalog.Path)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Engine.CallTimeout)
}

func TestLoadConfig_RequiresEndpointSource(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "no endpoint source")
}

func TestLoadConfig_NegativeIntervals(t *testing.T) {
	t.Setenv("CATALOG_PATH", "/etc/mdrouter/endpoints")
	t.Setenv("ENGINE_STATS_FLUSH_INTERVAL", "-1s")

	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "stats_flush_interval")
}

func TestLoadConfig_ZeroFlushIntervalDisables(t *testing.T) {
	t.Setenv("CATALOG_PATH", "/etc/mdrouter/endpoints")
	t.Setenv("ENGINE_STATS_FLUSH_INTERVAL", "0s")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, cfg.Engine.StatsFlushInterval)
}

func TestLoadConfig_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: ["), 0o644))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
