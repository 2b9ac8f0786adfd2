package redis

import (
	"context"
	"fmt"
	"time"

	"syncplay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures the room store connection.
type Options struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int

	DialTimeout time.Duration
	// IOTimeout bounds every read and write on a pooled connection.
	IOTimeout time.Duration
	// ConnectTimeout bounds the whole startup handshake: ping plus schema migration.
	ConnectTimeout time.Duration

	// Retry governs how often the startup ping is attempted before giving up.
	Retry retry.Config
}

func (o Options) redisOptions() *redis.Options {
	return &redis.Options{
		Addr:         o.Address,
		Password:     o.Password,
		DB:           o.DB,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.IOTimeout,
		WriteTimeout: o.IOTimeout,
	}
}

// NewRedisClient connects with the given options, retrying the initial ping,
// and brings the keyspace to the current schema version. The client is closed
// on any failure.
func NewRedisClient(opts Options, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(opts.redisOptions())

	ctx := context.Background()
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	attempts := 0
	err := retry.Do(ctx, opts.Retry, func(ctx context.Context) error {
		attempts++
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable after %d attempt(s): %w", opts.Address, attempts, err)
	}

	if err := Migrate(ctx, client, logger); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate room keyspace: %w", err)
	}

	if logger != nil {
		logger.Infow("room store connected",
			"backend", "redis",
			"address", opts.Address,
			"db", opts.DB,
			"pool_size", opts.PoolSize,
			"attempts", attempts,
		)
	}

	return client, nil
}

// CloseRedisClient closes the client; a nil client is a no-op.
func CloseRedisClient(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
