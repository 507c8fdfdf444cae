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
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "sentinel-workers", cfg.NATS.QueueGroup)
	assert.False(t, cfg.Redis.Enabled)

	ec := cfg.EngineConfig()
	assert.Equal(t, 1000, ec.Buffer.Capacity)
	assert.Equal(t, 24*time.Hour, ec.Buffer.TTL)
	assert.Equal(t, 10000, ec.Buffer.MaxKeys)
	assert.Equal(t, 60*time.Second, ec.MaintenanceInterval)
	assert.Equal(t, 3, ec.UnhealthyAfter)
	assert.Equal(t, 5, ec.Breaker.Threshold)
	assert.Equal(t, time.Minute, ec.Breaker.Timeout)
	assert.Equal(t, 5*time.Minute, ec.Alerts.SuppressionWindow)
	assert.Equal(t, 5, ec.Alerts.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Second, ec.Responder.Queue.AttemptTimeout)
	assert.Equal(t, 50, ec.Anomaly.VolumeCeiling)
	assert.InDelta(t, 0.9, ec.Anomaly.Thresholds.AutoBlock, 1e-9)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
logging:
  level: debug
  format: text
engine:
  buffer:
    capacity: 50
    max_keys: 200
  maintenance_interval: 30s
breaker:
  threshold: 3
alerts:
  suppression_window: 10m
redis:
  enabled: true
  url: redis://cache:6379/1
`)
	t.Setenv("SENTINEL_SERVER_PORT", "9200")
	t.Setenv("SENTINEL_BREAKER_TIMEOUT", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 50, cfg.Engine.Buffer.Capacity)
	assert.Equal(t, 200, cfg.Engine.Buffer.MaxKeys)
	assert.Equal(t, 24*time.Hour, cfg.Engine.Buffer.TTL, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Engine.MaintenanceInterval)
	assert.Equal(t, 3, cfg.Breaker.Threshold)
	assert.Equal(t, 2*time.Minute, cfg.Breaker.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Alerts.SuppressionWindow)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
		{"redis without url", func(c *Config) { c.Redis.Enabled = true; c.Redis.URL = "" }},
		{"postgres without host", func(c *Config) { c.Database.Postgres.Enabled = true; c.Database.Postgres.Host = "" }},
		{"threshold out of range", func(c *Config) { c.Anomaly.Thresholds.Alert = 1.5 }},
		{"alert above escalate", func(c *Config) { c.Anomaly.Thresholds.Alert = 0.95 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}

func TestPostgresConfig_ConnectionString(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "sentinel", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/sentinel?sslmode=disable", pg.ConnectionString())
}
