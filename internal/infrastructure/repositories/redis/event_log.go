package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisEventLog stores each room's history in a sorted set scored by the
// commit timestamp in microseconds, trimmed to the newest window entries.
type RedisEventLog struct {
	client *redis.Client
	window int64
}

func NewRedisEventLog(client *redis.Client, window int) ports.EventLog {
	if window <= 0 {
		window = 500
	}
	return &RedisEventLog{client: client, window: int64(window)}
}

func (l *RedisEventLog) Append(ctx context.Context, event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := eventsKey(event.RoomID)
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(event.Timestamp.UnixMicro()),
			Member: data,
		})
		pipe.ZRemRangeByRank(ctx, key, 0, -l.window-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append event to Redis: %w", err)
	}
	return nil
}

func (l *RedisEventLog) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	members, err := l.client.ZRange(ctx, eventsKey(roomID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from Redis: %w", err)
	}

	events := make([]*domain.Event, 0, len(members))
	for _, m := range members {
		var e domain.Event
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, &e)
	}
	return events, nil
}

func (l *RedisEventLog) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	if err := l.client.Del(ctx, eventsKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete events from Redis: %w", err)
	}
	return nil
}
