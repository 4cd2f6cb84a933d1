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

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Engine.HoldTimeout)
	assert.Zero(t, cfg.Engine.Turnaround)
	assert.Equal(t, 30*24*time.Hour, cfg.Engine.Horizon)
	assert.Equal(t, 5, cfg.Engine.AlternativeTopK)
	assert.Equal(t, 12*time.Hour, cfg.Engine.Step)
	assert.Equal(t, 30*time.Second, cfg.Engine.ReaperInterval)
	assert.Equal(t, time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, uint32(5), cfg.Catalog.BreakerFailures)
	assert.Equal(t, 5*time.Minute, cfg.CatalogSync.Interval)
	assert.Equal(t, 100, cfg.CatalogSync.Request.PageSize)
	assert.Equal(t, "log", cfg.Feed.Driver)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_EngineSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
engine:
  hold_timeout_seconds: 60
  minimum_turnaround_buffer: 2h
  alternative_search_horizon_days: 7
  alternative_top_k: 3
  strict_resources: true
feed:
  driver: redis
  redis_url: redis://localhost:6379/0
`))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Engine.HoldTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Engine.Turnaround)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.Horizon)
	assert.Equal(t, 3, cfg.Engine.AlternativeTopK)
	assert.True(t, cfg.Engine.StrictResources)
	assert.Equal(t, "redis", cfg.Feed.Driver)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "file:env.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")

	cfg, err := Load(writeConfig(t, "database:\n  dsn: postgres://file\n"))
	require.NoError(t, err)
	assert.Equal(t, "file:env.db", cfg.Database.DSN)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.Feed.AMQPURL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "engine:\n  minimum_turnaround_buffer: soon\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "engine:\n  minimum_turnaround_buffer: -1h\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "feed:\n  driver: kafka\n"))
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REDIS_URL=redis://from-dotenv:6379\n"), 0o600))
	t.Setenv("REDIS_URL", "")
	require.NoError(t, os.Unsetenv("REDIS_URL"))

	LoadEnv(path)
	assert.Equal(t, "redis://from-dotenv:6379", os.Getenv("REDIS_URL"))
	require.NoError(t, os.Unsetenv("REDIS_URL"))

	LoadEnv(filepath.Join(t.TempDir(), "absent.env"))
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", LogConfig{Level: "debug"}.SlogLevel().String())
	assert.Equal(t, "WARN", LogConfig{Level: "warning"}.SlogLevel().String())
	assert.Equal(t, "INFO", LogConfig{}.SlogLevel().String())
}
