package memory

import (
	"context"
	"sync"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
)

// MemoryEventLog keeps the most recent window events per room, ordered
// by timestamp.
type MemoryEventLog struct {
	window int
	events map[domain.RoomID][]*domain.Event
	mu     sync.RWMutex
}

func NewMemoryEventLog(window int) ports.EventLog {
	if window <= 0 {
		window = 500
	}
	return &MemoryEventLog{
		window: window,
		events: make(map[domain.RoomID][]*domain.Event),
	}
}

func (l *MemoryEventLog) Append(ctx context.Context, event *domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *event
	events := l.events[event.RoomID]

	// appends usually arrive in order, so walk back from the tail
	i := len(events)
	for i > 0 && events[i-1].Timestamp.After(stored.Timestamp) {
		i--
	}
	events = append(events, nil)
	copy(events[i+1:], events[i:])
	events[i] = &stored

	if len(events) > l.window {
		events = append([]*domain.Event(nil), events[len(events)-l.window:]...)
	}
	l.events[event.RoomID] = events
	return nil
}

func (l *MemoryEventLog) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.events[roomID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	result := make([]*domain.Event, len(events))
	for i, e := range events {
		c := *e
		result[i] = &c
	}
	return result, nil
}

func (l *MemoryEventLog) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.events, roomID)
	return nil
}
