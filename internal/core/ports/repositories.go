package ports

import (
	"context"

	"syncplay/internal/core/domain"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Update(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, id domain.RoomID) error
	List(ctx context.Context) ([]*domain.Room, error)
}

// EventLog is the append-only audit trail of accepted room transitions.
// Recent returns at most limit events in chronological order.
type EventLog interface {
	Append(ctx context.Context, event *domain.Event) error
	Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error)
	DeleteRoom(ctx context.Context, roomID domain.RoomID) error
}
