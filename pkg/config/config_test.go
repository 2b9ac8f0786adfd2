package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad_UsesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load("non-existent-config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.False(t, cfg.Sync.HostOnlyPlayback)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_LoadsFromYAMLAndAppliesEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
server:
  address: ":9000"
  read_timeout: 10s
  write_timeout: 15s

signal:
  ping_interval: 5s
  pong_timeout: 10s
  max_message_size: 4096

sync:
  host_only_playback: true
  event_log_window: 50

storage:
  driver: "sql"

sql:
  dialect: "sqlite"
  dsn: "file::memory:"

redis:
  connect_timeout: 30s

reaper:
  interval: 1m
  max_age: 2h

logging:
  level: "debug"
  format: "json"
`)

	t.Setenv("SYNCPLAY_SERVER_ADDRESS", ":7000")
	t.Setenv("SYNCPLAY_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	// YAML values
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, int64(4096), cfg.Signal.MaxMessageSize)
	assert.True(t, cfg.Sync.HostOnlyPlayback)
	assert.Equal(t, 50, cfg.Sync.EventLogWindow)
	assert.Equal(t, StorageSQL, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Reaper.MaxAge)
	assert.Equal(t, 30*time.Second, cfg.Redis.ConnectTimeout)

	// Defaults survive partial files
	assert.Equal(t, 256, cfg.Signal.SendBufferSize)
	assert.Equal(t, 3*time.Second, cfg.Redis.IOTimeout)

	// Env overrides
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  driver: "cassandra"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFirst_PicksFirstExisting(t *testing.T) {
	path := writeTempConfig(t, `
server:
  address: ":9100"
`)
	cfg, err := LoadFirst("missing-one.yaml", path, "missing-two.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Address)

	cfg, err = LoadFirst("missing-one.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestEnvOverride_HostOnlyPlayback(t *testing.T) {
	t.Setenv("SYNCPLAY_HOST_ONLY_PLAYBACK", "true")
	cfg, err := Load("non-existent-config.yaml")
	require.NoError(t, err)
	assert.True(t, cfg.Sync.HostOnlyPlayback)
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"pong timeout not above ping interval", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"zero send buffer", func(c *Config) { c.Signal.SendBufferSize = 0 }},
		{"zero max message size", func(c *Config) { c.Signal.MaxMessageSize = 0 }},
		{"zero event log window", func(c *Config) { c.Sync.EventLogWindow = 0 }},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"redis without address", func(c *Config) {
			c.Storage.Driver = StorageRedis
			c.Redis.Address = ""
		}},
		{"redis min idle above pool size", func(c *Config) {
			c.Storage.Driver = StorageRedis
			c.Redis.MinIdleConns = c.Redis.PoolSize + 1
		}},
		{"redis without io timeout", func(c *Config) {
			c.Storage.Driver = StorageRedis
			c.Redis.IOTimeout = 0
		}},
		{"sql with unknown dialect", func(c *Config) {
			c.Storage.Driver = StorageSQL
			c.SQL.Dialect = "oracle"
		}},
		{"sql without dsn", func(c *Config) {
			c.Storage.Driver = StorageSQL
			c.SQL.DSN = ""
		}},
		{"reaper without interval", func(c *Config) { c.Reaper.Interval = 0 }},
		{"zero retry attempts", func(c *Config) { c.Reliability.RetryAttempts = 0 }},
		{"tracing sample rate above one", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 1.5
		}},
		{"http rps must be > 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
		{"ws messages per second must be > 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.WebSocket.MessagesPerSecond = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
