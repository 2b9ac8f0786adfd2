package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/infrastructure/repositories/memory"
	"syncplay/pkg/circuitbreaker"
	"syncplay/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBackend = errors.New("backend unavailable")

// flakyEventLog fails the first failures calls, then delegates.
type flakyEventLog struct {
	failures int
	calls    int
	inner    *memory.MemoryEventLog
}

func newFlakyEventLog(failures int) *flakyEventLog {
	return &flakyEventLog{
		failures: failures,
		inner:    memory.NewMemoryEventLog(10).(*memory.MemoryEventLog),
	}
}

func (f *flakyEventLog) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return errBackend
	}
	return nil
}

func (f *flakyEventLog) Append(ctx context.Context, event *domain.Event) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.Append(ctx, event)
}

func (f *flakyEventLog) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.inner.Recent(ctx, roomID, limit)
}

func (f *flakyEventLog) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.DeleteRoom(ctx, roomID)
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestEventLogWrapper_RetriesTransientFailures(t *testing.T) {
	flaky := newFlakyEventLog(2)
	w := NewEventLogWrapper(flaky, fastRetry(3), circuitbreaker.DefaultConfig(), zap.NewNop().Sugar())
	ctx := context.Background()

	err := w.Append(ctx, &domain.Event{ID: "e1", RoomID: "room-1", Type: domain.EventPlay, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)

	events, err := w.Recent(ctx, "room-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventLogWrapper_OpensBreaker(t *testing.T) {
	flaky := newFlakyEventLog(100)
	cb := circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		MaxRequestsHalfOpen: 1,
	}
	w := NewEventLogWrapper(flaky, fastRetry(1), cb, zap.NewNop().Sugar())
	ctx := context.Background()
	ev := &domain.Event{ID: "e1", RoomID: "room-1", Type: domain.EventPlay, Timestamp: time.Now()}

	assert.ErrorIs(t, w.Append(ctx, ev), errBackend)
	assert.ErrorIs(t, w.Append(ctx, ev), errBackend)
	assert.Equal(t, circuitbreaker.StateOpen, w.BreakerState())

	calls := flaky.calls
	assert.ErrorIs(t, w.Append(ctx, ev), circuitbreaker.ErrOpen)
	assert.Equal(t, calls, flaky.calls, "open breaker must not reach the backend")
}

func TestRoomRepositoryWrapper_DomainErrorsPassThrough(t *testing.T) {
	cb := circuitbreaker.Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		MaxRequestsHalfOpen: 1,
	}
	w := NewRoomRepositoryWrapper(memory.NewMemoryRoomRepository(), fastRetry(3), cb, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := w.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = w.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Equal(t, circuitbreaker.StateClosed, w.BreakerState())

	now := time.Now()
	room := &domain.Room{ID: "room-1", Name: "Movie night", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, w.Create(ctx, room))
	assert.ErrorIs(t, w.Create(ctx, room), domain.ErrRoomExists)

	rooms, err := w.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	require.NoError(t, w.Delete(ctx, "room-1"))
	assert.ErrorIs(t, w.Update(ctx, room), domain.ErrRoomNotFound)
}
