package reliability

import (
	"context"
	"errors"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
	"syncplay/pkg/circuitbreaker"
	"syncplay/pkg/retry"
	"syncplay/pkg/tracing"

	"go.uber.org/zap"
)

// domainErrors are answers from the backend, not failures of it. They are
// neither retried nor counted against the breaker.
var domainErrors = []error{
	domain.ErrRoomNotFound,
	domain.ErrRoomExists,
}

type guard struct {
	name    string
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
}

func newGuard(name string, retryConfig retry.Config, cbConfig circuitbreaker.Config, logger *zap.SugaredLogger) *guard {
	retryConfig.NonRetryable = append(append([]error{}, retryConfig.NonRetryable...), circuitbreaker.ErrOpen)
	retryConfig.NonRetryable = append(retryConfig.NonRetryable, domainErrors...)

	g := &guard{
		name:    name,
		retry:   retryConfig,
		breaker: circuitbreaker.New(cbConfig),
	}
	g.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("circuit breaker state changed",
			"backend", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return g
}

func (g *guard) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.TraceStoreOperation(ctx, g.name, operation)
	defer span.End()

	err := retry.Do(ctx, g.retry, func(ctx context.Context) error {
		var answer error
		err := g.breaker.Execute(ctx, func() error {
			err := fn(ctx)
			if isDomainError(err) {
				answer = err
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
		return answer
	})
	if err != nil && !isDomainError(err) {
		tracing.RecordError(ctx, err)
	}
	return err
}

func isDomainError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// EventLogWrapper wraps an EventLog with retry logic and a circuit breaker
type EventLogWrapper struct {
	log   ports.EventLog
	guard *guard
}

// NewEventLogWrapper creates a new wrapper with retry and circuit breaker
func NewEventLogWrapper(
	log ports.EventLog,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *EventLogWrapper {
	return &EventLogWrapper{
		log:   log,
		guard: newGuard("event_log", retryConfig, cbConfig, logger),
	}
}

func (w *EventLogWrapper) Append(ctx context.Context, event *domain.Event) error {
	return w.guard.run(ctx, "append", func(ctx context.Context) error {
		return w.log.Append(ctx, event)
	})
}

func (w *EventLogWrapper) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error) {
	var events []*domain.Event
	err := w.guard.run(ctx, "recent", func(ctx context.Context) error {
		var err error
		events, err = w.log.Recent(ctx, roomID, limit)
		return err
	})
	return events, err
}

func (w *EventLogWrapper) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	return w.guard.run(ctx, "delete_room", func(ctx context.Context) error {
		return w.log.DeleteRoom(ctx, roomID)
	})
}

// BreakerState exposes the breaker for health reporting.
func (w *EventLogWrapper) BreakerState() circuitbreaker.State {
	return w.guard.breaker.GetState()
}

// RoomRepositoryWrapper wraps a RoomRepository with retry logic and a
// circuit breaker. Every operation is idempotent, so a retried write that
// already landed is harmless.
type RoomRepositoryWrapper struct {
	repo  ports.RoomRepository
	guard *guard
}

func NewRoomRepositoryWrapper(
	repo ports.RoomRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *RoomRepositoryWrapper {
	return &RoomRepositoryWrapper{
		repo:  repo,
		guard: newGuard("room_store", retryConfig, cbConfig, logger),
	}
}

func (w *RoomRepositoryWrapper) Create(ctx context.Context, room *domain.Room) error {
	return w.guard.run(ctx, "create", func(ctx context.Context) error {
		return w.repo.Create(ctx, room)
	})
}

func (w *RoomRepositoryWrapper) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var room *domain.Room
	err := w.guard.run(ctx, "get", func(ctx context.Context) error {
		var err error
		room, err = w.repo.GetByID(ctx, id)
		return err
	})
	return room, err
}

func (w *RoomRepositoryWrapper) Update(ctx context.Context, room *domain.Room) error {
	return w.guard.run(ctx, "update", func(ctx context.Context) error {
		return w.repo.Update(ctx, room)
	})
}

func (w *RoomRepositoryWrapper) Delete(ctx context.Context, id domain.RoomID) error {
	return w.guard.run(ctx, "delete", func(ctx context.Context) error {
		return w.repo.Delete(ctx, id)
	})
}

func (w *RoomRepositoryWrapper) List(ctx context.Context) ([]*domain.Room, error) {
	var rooms []*domain.Room
	err := w.guard.run(ctx, "list", func(ctx context.Context) error {
		var err error
		rooms, err = w.repo.List(ctx)
		return err
	})
	return rooms, err
}

func (w *RoomRepositoryWrapper) BreakerState() circuitbreaker.State {
	return w.guard.breaker.GetState()
}

var (
	_ ports.EventLog       = (*EventLogWrapper)(nil)
	_ ports.RoomRepository = (*RoomRepositoryWrapper)(nil)
)
