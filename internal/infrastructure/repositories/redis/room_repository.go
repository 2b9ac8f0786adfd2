package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisRoomRepository struct {
	client *redis.Client
}

func NewRedisRoomRepository(client *redis.Client) ports.RoomRepository {
	return &RedisRoomRepository{client: client}
}

func (r *RedisRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	created, err := r.client.SetNX(ctx, roomKey(room.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create room in Redis: %w", err)
	}
	if !created {
		return domain.ErrRoomExists
	}

	if err := r.client.SAdd(ctx, roomIndexKey, string(room.ID)).Err(); err != nil {
		return fmt.Errorf("failed to index room: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	data, err := r.client.Get(ctx, roomKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}

	return decodeRoom(data)
}

// Update only overwrites rooms that still exist (SET XX), so a room
// deleted by the reaper is never resurrected by a late write.
func (r *RedisRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	updated, err := r.client.SetXX(ctx, roomKey(room.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update room in Redis: %w", err)
	}
	if !updated {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RedisRoomRepository) Delete(ctx context.Context, id domain.RoomID) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, roomKey(id))
		pipe.SRem(ctx, roomIndexKey, string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete room from Redis: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RedisRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	ids, err := r.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms from Redis: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(domain.RoomID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load rooms from Redis: %w", err)
	}

	rooms := make([]*domain.Room, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// index entry without a room key; skip it
			continue
		}
		room, err := decodeRoom([]byte(s))
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func decodeRoom(data []byte) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}
