package repositories

import (
	"context"

	"syncplay/internal/core/ports"
	"syncplay/internal/infrastructure/repositories/memory"
	redisrepo "syncplay/internal/infrastructure/repositories/redis"
	sqlrepo "syncplay/internal/infrastructure/repositories/sql"
	"syncplay/pkg/config"
	"syncplay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RepositoryFactory creates the room store and event log for the configured
// storage driver, falling back to memory when the backend is unreachable.
type RepositoryFactory struct {
	driver      string
	window      int
	redisClient *redis.Client
	db          *gorm.DB
	logger      *zap.SugaredLogger
}

func redisOptions(cfg *config.Config) redisrepo.Options {
	backoff := retry.DefaultConfig()
	backoff.MaxAttempts = cfg.Reliability.RetryAttempts
	backoff.InitialDelay = cfg.Reliability.RetryDelay

	return redisrepo.Options{
		Address:        cfg.Redis.Address,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		PoolSize:       cfg.Redis.PoolSize,
		MinIdleConns:   cfg.Redis.MinIdleConns,
		DialTimeout:    cfg.Redis.DialTimeout,
		IOTimeout:      cfg.Redis.IOTimeout,
		ConnectTimeout: cfg.Redis.ConnectTimeout,
		Retry:          backoff,
	}
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver: cfg.Storage.Driver,
		window: cfg.Sync.EventLogWindow,
		logger: logger,
	}

	switch cfg.Storage.Driver {
	case config.StorageRedis:
		client, err := redisrepo.NewRedisClient(redisOptions(cfg), logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.driver = config.StorageMemory
		} else {
			factory.redisClient = client
		}

	case config.StorageSQL:
		db, err := sqlrepo.Open(cfg.SQL.Dialect, cfg.SQL.DSN, gormLogLevel(cfg.Logging.Level))
		if err != nil {
			logger.Warnw("failed to open SQL database, falling back to memory repositories",
				"dialect", cfg.SQL.Dialect,
				"error", err,
			)
			factory.driver = config.StorageMemory
		} else {
			factory.db = db
		}
	}

	logger.Infow("using repositories", "driver", factory.driver)
	return factory, nil
}

// Driver reports the backend actually in use after any fallback.
func (f *RepositoryFactory) Driver() string {
	return f.driver
}

// CreateRoomRepository creates the room store for the active backend
func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	switch {
	case f.redisClient != nil:
		return redisrepo.NewRedisRoomRepository(f.redisClient)
	case f.db != nil:
		return sqlrepo.NewGormRoomRepository(f.db)
	default:
		return memory.NewMemoryRoomRepository()
	}
}

// CreateEventLog creates the bounded event log for the active backend
func (f *RepositoryFactory) CreateEventLog() ports.EventLog {
	switch {
	case f.redisClient != nil:
		return redisrepo.NewRedisEventLog(f.redisClient, f.window)
	case f.db != nil:
		return sqlrepo.NewGormEventLog(f.db, f.window)
	default:
		return memory.NewMemoryEventLog(f.window)
	}
}

// RedisClient returns the shared client, or nil when Redis is not in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close releases backend connections
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	if f.db != nil {
		return sqlrepo.Close(f.db)
	}
	return nil
}

// HealthCheck pings the active backend
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	if f.db != nil {
		sqlDB, err := f.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "warn":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}
