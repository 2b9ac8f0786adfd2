package services

import (
	"context"
	"fmt"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
	"syncplay/pkg/utils"

	"go.uber.org/zap"
)

// RunLock keeps two reaper instances from sweeping the same store at once.
type RunLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

type ReaperConfig struct {
	Interval    time.Duration
	MaxAge      time.Duration
	SessionIdle time.Duration
}

// RoomArchiver keeps a copy of rooms before the reaper deletes them.
type RoomArchiver interface {
	Save(ctx context.Context, rooms []*domain.Room) (string, error)
}

type ReapReport struct {
	Cutoff      time.Time
	DryRun      bool
	LockNotHeld bool
	Scanned     int
	Deleted     []domain.RoomID
	SkippedLive int
	Archive     string
}

// ReaperService deletes rooms nobody has used since a cutoff and closes
// sessions that went silent.
type ReaperService struct {
	repo     ports.RoomRepository
	eventLog ports.EventLog
	engine   ports.RoomEngine
	registry ports.SessionRegistry
	newLock  func() RunLock
	config   ReaperConfig
	logger   *zap.SugaredLogger
	onSweep  func(report *ReapReport)
	archiver RoomArchiver
}

// NewReaperService wires the reaper. engine, registry and newLock may be nil
// when running outside the server process.
func NewReaperService(
	repo ports.RoomRepository,
	eventLog ports.EventLog,
	engine ports.RoomEngine,
	registry ports.SessionRegistry,
	newLock func() RunLock,
	config ReaperConfig,
	logger *zap.SugaredLogger,
) *ReaperService {
	return &ReaperService{
		repo:     repo,
		eventLog: eventLog,
		engine:   engine,
		registry: registry,
		newLock:  newLock,
		config:   config,
		logger:   logger,
	}
}

// OnSweep registers fn to observe every completed sweep that was not a dry run.
func (r *ReaperService) OnSweep(fn func(report *ReapReport)) {
	r.onSweep = fn
}

// WithArchiver makes every deleting sweep save the doomed rooms first. A
// failed save aborts the sweep.
func (r *ReaperService) WithArchiver(a RoomArchiver) *ReaperService {
	r.archiver = a
	return r
}

// Eligible reports whether room saw no activity since cutoff.
func Eligible(room *domain.Room, cutoff time.Time) bool {
	if !room.CreatedAt.Before(cutoff) {
		return false
	}
	return room.LastActivity().Before(cutoff)
}

// Run performs one sweep for rooms idle longer than maxAge.
func (r *ReaperService) Run(ctx context.Context, maxAge time.Duration, dryRun bool) (*ReapReport, error) {
	report := &ReapReport{
		Cutoff: utils.Now().Add(-maxAge),
		DryRun: dryRun,
	}

	if r.newLock != nil {
		lock := r.newLock()
		ok, err := lock.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire reaper lock: %w", err)
		}
		if !ok {
			report.LockNotHeld = true
			return report, nil
		}
		defer func() {
			if err := lock.Unlock(context.Background()); err != nil {
				r.logger.Warnw("failed to release reaper lock", "error", err)
			}
		}()
	}

	rooms, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	report.Scanned = len(rooms)

	var candidates []*domain.Room
	for _, room := range rooms {
		if !Eligible(room, report.Cutoff) {
			continue
		}
		if r.registry != nil && r.registry.CountInRoom(room.ID) > 0 {
			report.SkippedLive++
			continue
		}
		candidates = append(candidates, room)
	}

	if dryRun {
		for _, room := range candidates {
			report.Deleted = append(report.Deleted, room.ID)
		}
	} else {
		if r.archiver != nil && len(candidates) > 0 {
			name, err := r.archiver.Save(ctx, candidates)
			if err != nil {
				return nil, fmt.Errorf("failed to archive rooms: %w", err)
			}
			report.Archive = name
		}
		for _, room := range candidates {
			if r.delete(ctx, room.ID) {
				report.Deleted = append(report.Deleted, room.ID)
			}
		}
	}

	r.logger.Infow("reaper sweep finished",
		"scanned", report.Scanned,
		"deleted", len(report.Deleted),
		"skipped_live", report.SkippedLive,
		"dry_run", dryRun,
	)
	if !dryRun && r.onSweep != nil {
		r.onSweep(report)
	}
	return report, nil
}

func (r *ReaperService) delete(ctx context.Context, roomID domain.RoomID) bool {
	if err := r.repo.Delete(ctx, roomID); err != nil {
		r.logger.Warnw("failed to delete stale room",
			"room_id", roomID,
			"error", err,
		)
		return false
	}
	if r.engine != nil {
		r.engine.Evict(roomID)
	}
	if err := r.eventLog.DeleteRoom(ctx, roomID); err != nil {
		r.logger.Warnw("failed to delete events of stale room",
			"room_id", roomID,
			"error", err,
		)
	}
	return true
}

// CloseIdleSessions force-disconnects sessions silent for longer than the
// configured idle interval.
func (r *ReaperService) CloseIdleSessions() int {
	if r.registry == nil || r.config.SessionIdle <= 0 {
		return 0
	}
	closed := r.registry.CloseIdle(utils.Now().Add(-r.config.SessionIdle))
	if closed > 0 {
		r.logger.Infow("closed idle sessions", "count", closed)
	}
	return closed
}

// Start sweeps periodically until ctx is done.
func (r *ReaperService) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CloseIdleSessions()
			if _, err := r.Run(ctx, r.config.MaxAge, false); err != nil {
				r.logger.Warnw("reaper sweep failed", "error", err)
			}
		}
	}
}
