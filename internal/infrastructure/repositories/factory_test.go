package repositories

import (
	"context"
	"testing"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func exerciseRepositories(t *testing.T, f *RepositoryFactory) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rooms := f.CreateRoomRepository()
	require.NoError(t, rooms.Create(ctx, &domain.Room{
		ID:        "room-1",
		Name:      "Movie night",
		CreatedAt: now,
		UpdatedAt: now,
	}))
	got, err := rooms.GetByID(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "Movie night", got.Name)

	events := f.CreateEventLog()
	require.NoError(t, events.Append(ctx, &domain.Event{
		ID:        "event-1",
		RoomID:    "room-1",
		Type:      domain.EventJoin,
		Timestamp: now,
	}))
	recent, err := events.Recent(ctx, "room-1", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	assert.NoError(t, f.HealthCheck(ctx))
}

func TestRepositoryFactory_Memory(t *testing.T) {
	cfg := config.DefaultConfig()

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, config.StorageMemory, f.Driver())
	assert.Nil(t, f.RedisClient())
	exerciseRepositories(t, f)
}

func TestRepositoryFactory_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.StorageRedis
	cfg.Redis.Address = mr.Addr()

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, config.StorageRedis, f.Driver())
	assert.NotNil(t, f.RedisClient())
	exerciseRepositories(t, f)
	assert.True(t, mr.Exists("syncplay:room:room-1"))
}

func TestRepositoryFactory_SQL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.StorageSQL
	cfg.SQL.Dialect = "sqlite"
	cfg.SQL.DSN = ":memory:"

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, config.StorageSQL, f.Driver())
	exerciseRepositories(t, f)
}

func TestRepositoryFactory_FallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.StorageRedis
	cfg.Redis.Address = addr

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, config.StorageMemory, f.Driver())
	exerciseRepositories(t, f)
}
