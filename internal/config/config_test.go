package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlText := `
server:
  rest_port: 9090
storage:
  backend: badger
  compress: true
  badger_path: /var/lib/microblock
  redis_ttl_seconds: 30
mesh:
  workers: 3
cache:
  backend: redis
  ttl_seconds: 120
telemetry:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlText), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 9090, cfg.Server.GetRESTPort())
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.True(t, cfg.Storage.Compress)
	assert.Equal(t, "/var/lib/microblock", cfg.Storage.BadgerPath)
	assert.Equal(t, 30*time.Second, cfg.Storage.GetRedisTTL())
	assert.Equal(t, 3, cfg.Mesh.Workers)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.GetTTL())
	assert.Equal(t, 64, cfg.Cache.MaxMB)
	assert.True(t, cfg.Telemetry.Enabled)

	// Не указанные поля берутся из значений по умолчанию
	assert.Equal(t, "rock-granite", cfg.Materials.DefaultMaterial)
	assert.Equal(t, "microblock", cfg.Telemetry.ServiceName)
	assert.Equal(t, 24*time.Hour, cfg.EventBus.GetRetention())
}

func TestLoad_EmptyPath(t *testing.T) {
	t.Setenv("MICROBLOCK_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, cfg)
	assert.Equal(t, "memory", OrDefault(cfg).Storage.Backend)
}

func TestLoad_EnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sql\n"), 0o644))
	t.Setenv("MICROBLOCK_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sql", cfg.Storage.Backend)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestPortFallback(t *testing.T) {
	var s ServerConfig
	t.Setenv("MICROBLOCK_METRICS_PORT", "9100")
	assert.Equal(t, 9100, s.GetMetricsPort())

	t.Setenv("MICROBLOCK_REST_PORT", "oops")
	assert.Equal(t, 8088, s.GetRESTPort())
}
