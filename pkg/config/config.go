package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQL    = "sql"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		PublicURL       string        `yaml:"public_url"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		SendBufferSize int           `yaml:"send_buffer_size"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"signal"`

	Sync struct {
		HostOnlyPlayback bool          `yaml:"host_only_playback"`
		EventLogWindow   int           `yaml:"event_log_window"`
		EventLogTimeout  time.Duration `yaml:"event_log_timeout"`
		ActivityWindow   time.Duration `yaml:"activity_window"`
	} `yaml:"sync"`

	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`

		MinIdleConns   int           `yaml:"min_idle_conns"`
		DialTimeout    time.Duration `yaml:"dial_timeout"`
		IOTimeout      time.Duration `yaml:"io_timeout"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"redis"`

	SQL struct {
		Dialect string `yaml:"dialect"`
		DSN     string `yaml:"dsn"`
	} `yaml:"sql"`

	Reaper struct {
		Enabled     bool          `yaml:"enabled"`
		Interval    time.Duration `yaml:"interval"`
		MaxAge      time.Duration `yaml:"max_age"`
		SessionIdle time.Duration `yaml:"session_idle"`
		LockTTL     time.Duration `yaml:"lock_ttl"`
		ArchiveDir  string        `yaml:"archive_dir"`
	} `yaml:"reaper"`

	Reliability struct {
		RetryAttempts   int           `yaml:"retry_attempts"`
		RetryDelay      time.Duration `yaml:"retry_delay"`
		BreakerFailures int           `yaml:"breaker_failures"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Monitoring struct {
		PrometheusEnabled   bool          `yaml:"prometheus_enabled"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
		HealthCheckTimeout  time.Duration `yaml:"health_check_timeout"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.SendBufferSize <= 0 {
		return fmt.Errorf("signal.send_buffer_size must be > 0")
	}
	if c.Signal.MaxMessageSize <= 0 {
		return fmt.Errorf("signal.max_message_size must be > 0")
	}

	// Sync
	if c.Sync.EventLogWindow <= 0 {
		return fmt.Errorf("sync.event_log_window must be > 0")
	}
	if c.Sync.EventLogTimeout <= 0 {
		return fmt.Errorf("sync.event_log_timeout must be > 0")
	}
	if c.Sync.ActivityWindow <= 0 {
		return fmt.Errorf("sync.activity_window must be > 0")
	}

	// Storage
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when storage.driver=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when storage.driver=redis")
		}
		if c.Redis.MinIdleConns < 0 || c.Redis.MinIdleConns > c.Redis.PoolSize {
			return fmt.Errorf("redis.min_idle_conns must be between 0 and redis.pool_size")
		}
		if c.Redis.DialTimeout <= 0 || c.Redis.IOTimeout <= 0 || c.Redis.ConnectTimeout <= 0 {
			return fmt.Errorf("redis dial_timeout, io_timeout and connect_timeout must be positive")
		}
	case StorageSQL:
		if c.SQL.Dialect != "sqlite" && c.SQL.Dialect != "postgres" {
			return fmt.Errorf("sql.dialect must be sqlite or postgres, got %q", c.SQL.Dialect)
		}
		if c.SQL.DSN == "" {
			return fmt.Errorf("sql.dsn must not be empty when storage.driver=sql")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, redis, sql, got %q", c.Storage.Driver)
	}

	// Reaper
	if c.Reaper.Enabled {
		if c.Reaper.Interval <= 0 {
			return fmt.Errorf("reaper.interval must be > 0 when reaper.enabled=true")
		}
		if c.Reaper.MaxAge <= 0 {
			return fmt.Errorf("reaper.max_age must be > 0 when reaper.enabled=true")
		}
		if c.Reaper.SessionIdle < 0 {
			return fmt.Errorf("reaper.session_idle must be >= 0")
		}
	}

	// Reliability
	if c.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("reliability.retry_attempts must be >= 1")
	}
	if c.Reliability.BreakerFailures < 1 {
		return fmt.Errorf("reliability.breaker_failures must be >= 1")
	}
	if c.Reliability.BreakerTimeout <= 0 {
		return fmt.Errorf("reliability.breaker_timeout must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFirst loads the first existing path, or defaults when none exists.
func LoadFirst(paths ...string) (*Config, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	if len(paths) == 0 {
		return Load("")
	}
	return Load(paths[len(paths)-1])
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBufferSize = 256
	cfg.Signal.MaxMessageSize = 64 * 1024
	cfg.Signal.AllowedOrigins = []string{"*"}

	cfg.Sync.HostOnlyPlayback = false
	cfg.Sync.EventLogWindow = 500
	cfg.Sync.EventLogTimeout = 2 * time.Second
	cfg.Sync.ActivityWindow = time.Hour

	cfg.Storage.Driver = StorageMemory

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.MinIdleConns = 2
	cfg.Redis.DialTimeout = 5 * time.Second
	cfg.Redis.IOTimeout = 3 * time.Second
	cfg.Redis.ConnectTimeout = 10 * time.Second

	cfg.SQL.Dialect = "sqlite"
	cfg.SQL.DSN = "syncplay.db"

	cfg.Reaper.Enabled = true
	cfg.Reaper.Interval = 10 * time.Minute
	cfg.Reaper.MaxAge = 24 * time.Hour
	cfg.Reaper.SessionIdle = 5 * time.Minute
	cfg.Reaper.LockTTL = time.Minute

	cfg.Reliability.RetryAttempts = 3
	cfg.Reliability.RetryDelay = 50 * time.Millisecond
	cfg.Reliability.BreakerFailures = 5
	cfg.Reliability.BreakerTimeout = 30 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthCheckInterval = 15 * time.Second
	cfg.Monitoring.HealthCheckTimeout = 3 * time.Second

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 0.1

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SYNCPLAY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if url := os.Getenv("SYNCPLAY_PUBLIC_URL"); url != "" {
		c.Server.PublicURL = url
	}
	if level := os.Getenv("SYNCPLAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if driver := os.Getenv("SYNCPLAY_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if addr := os.Getenv("SYNCPLAY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if password := os.Getenv("SYNCPLAY_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if dsn := os.Getenv("SYNCPLAY_SQL_DSN"); dsn != "" {
		c.SQL.DSN = dsn
	}
	if v := os.Getenv("SYNCPLAY_HOST_ONLY_PLAYBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sync.HostOnlyPlayback = b
		}
	}
}
