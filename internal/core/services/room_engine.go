package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"

	"go.uber.org/zap"
)

type EngineConfig struct {
	// HostOnlyPlayback restricts play, pause and seek to the host.
	HostOnlyPlayback bool
}

// roomEntry is the single mutation point of one room. The committed room
// is never modified in place: each change is applied to a clone and
// swapped in after the store accepted it, so readers may load it without
// taking mu.
type roomEntry struct {
	mu      sync.Mutex
	room    atomic.Pointer[domain.Room]
	evicted bool

	// seen holds heartbeat times not yet folded into a commit.
	seen sync.Map
}

type roomEngine struct {
	repo   ports.RoomRepository
	config EngineConfig
	logger *zap.SugaredLogger
	now    func() time.Time

	mu      sync.Mutex
	entries map[domain.RoomID]*roomEntry
}

func NewRoomEngine(repo ports.RoomRepository, config EngineConfig, logger *zap.SugaredLogger) ports.RoomEngine {
	return &roomEngine{
		repo:    repo,
		config:  config,
		logger:  logger,
		now:     time.Now,
		entries: make(map[domain.RoomID]*roomEntry),
	}
}

func (e *roomEngine) entry(roomID domain.RoomID) *roomEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[roomID]
	if !ok {
		entry = &roomEntry{}
		e.entries[roomID] = entry
	}
	return entry
}

// detach removes entry from the table. Caller holds entry.mu.
func (e *roomEngine) detach(roomID domain.RoomID, entry *roomEntry) {
	e.mu.Lock()
	if e.entries[roomID] == entry {
		delete(e.entries, roomID)
	}
	e.mu.Unlock()
	entry.evicted = true
	entry.room.Store(nil)
}

// lock acquires the room's critical section, loading the room from the
// store on first use. Participants loaded from the store have no live
// session in this process yet, so they start offline.
func (e *roomEngine) lock(ctx context.Context, roomID domain.RoomID) (*roomEntry, error) {
	for {
		entry := e.entry(roomID)
		entry.mu.Lock()
		if entry.evicted {
			entry.mu.Unlock()
			continue
		}
		if entry.room.Load() != nil {
			return entry, nil
		}

		room, err := e.repo.GetByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				e.detach(roomID, entry)
			}
			entry.mu.Unlock()
			return nil, err
		}
		for _, p := range room.Participants {
			p.Online = false
		}
		entry.room.Store(room)
		return entry, nil
	}
}

// read returns the committed state of a loaded room without entering its
// critical section. Unloaded rooms are loaded through lock first.
func (e *roomEngine) read(ctx context.Context, roomID domain.RoomID) (*roomEntry, *domain.Room, error) {
	e.mu.Lock()
	entry, ok := e.entries[roomID]
	e.mu.Unlock()
	if ok {
		if room := entry.room.Load(); room != nil {
			return entry, room, nil
		}
	}

	entry, err := e.lock(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	room := entry.room.Load()
	entry.mu.Unlock()
	return entry, room, nil
}

// applySeen folds pending heartbeats into room, which must be a clone.
func applySeen(entry *roomEntry, room *domain.Room) {
	entry.seen.Range(func(key, value interface{}) bool {
		if p := room.Participant(key.(domain.ParticipantID)); p != nil {
			if seen := value.(time.Time); seen.After(p.LastSeen) {
				p.LastSeen = seen
			}
		}
		return true
	})
}

// commit persists next and makes it the current state. The commit time is
// strictly increasing per room so that event history keeps its order.
func (e *roomEngine) commit(ctx context.Context, roomID domain.RoomID, entry *roomEntry, next *domain.Room, at time.Time) error {
	next.UpdatedAt = at
	applySeen(entry, next)
	if err := e.repo.Update(ctx, next); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			e.detach(roomID, entry)
			return err
		}
		return fmt.Errorf("failed to persist room %s: %w", roomID, err)
	}
	entry.room.Store(next)

	entry.seen.Range(func(key, value interface{}) bool {
		p := next.Participant(key.(domain.ParticipantID))
		if p == nil || !value.(time.Time).After(p.LastSeen) {
			entry.seen.CompareAndDelete(key, value)
		}
		return true
	})
	return nil
}

func (e *roomEngine) commitTime(room *domain.Room) time.Time {
	now := e.now()
	if !now.After(room.UpdatedAt) {
		now = room.UpdatedAt.Add(time.Microsecond)
	}
	return now
}

func transition(room *domain.Room, p *domain.Participant, at time.Time) *domain.Transition {
	t := &domain.Transition{Room: room.Clone(), At: at}
	if p != nil {
		t.Participant = p.Clone()
	}
	return t
}

// hostVacant reports whether the host slot is free. A host that has not
// connected yet, or is offline, keeps the slot.
func hostVacant(room *domain.Room) bool {
	return room.HostID == ""
}

// nameReserved reports whether holder keeps its name against a newcomer.
// Offline participants give their name up, except the host.
func nameReserved(room *domain.Room, holder *domain.Participant) bool {
	return holder.Online || holder.ID == room.HostID
}

func promote(room *domain.Room, p *domain.Participant) {
	for _, other := range room.Participants {
		other.IsHost = false
	}
	p.IsHost = true
	room.HostID = p.ID
}

func removeParticipant(room *domain.Room, id domain.ParticipantID) {
	kept := room.Participants[:0]
	for _, p := range room.Participants {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	room.Participants = kept
	if room.HostID == id {
		room.HostID = ""
	}
}

func (e *roomEngine) Join(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID, name string) (*domain.Transition, error) {
	entry, err := e.lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	current := entry.room.Load()
	next := current.Clone()
	at := e.commitTime(current)
	wasIdle := onlineCount(current) == 0

	p := next.Participant(participantID)
	reconnected := p != nil
	if reconnected {
		p.Online = true
		p.LastSeen = at
	} else {
		if holder := next.ParticipantByName(name); holder != nil {
			if nameReserved(next, holder) {
				return nil, domain.ErrNameTaken
			}
			removeParticipant(next, holder.ID)
		}
		p = &domain.Participant{
			ID:       participantID,
			Name:     name,
			Online:   true,
			JoinedAt: at,
			LastSeen: at,
		}
		next.Participants = append(next.Participants, p)
	}

	if hostVacant(next) || next.HostID == p.ID {
		promote(next, p)
	}

	if err := e.commit(ctx, roomID, entry, next, at); err != nil {
		return nil, err
	}

	e.logger.Debugw("participant joined",
		"room_id", roomID,
		"participant_id", participantID,
		"reconnected", reconnected,
		"is_host", p.IsHost,
	)

	t := transition(next, p, at)
	t.Reconnected = reconnected
	t.RoomActivated = wasIdle
	return t, nil
}

func onlineCount(room *domain.Room) int {
	n := 0
	for _, p := range room.Participants {
		if p.Online {
			n++
		}
	}
	return n
}

// Leave removes the participant. When stay is given it is evaluated inside
// the room's critical section, and a true result keeps the participant
// (ErrParticipantConnected).
func (e *roomEngine) Leave(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID, stay func() bool) (*domain.Transition, error) {
	entry, err := e.lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	current := entry.room.Load()
	p := current.Participant(participantID)
	if p == nil {
		return nil, domain.ErrParticipantNotFound
	}
	if stay != nil && stay() {
		return nil, domain.ErrParticipantConnected
	}
	left := p.Clone()

	next := current.Clone()
	at := e.commitTime(current)
	removeParticipant(next, participantID)

	if err := e.commit(ctx, roomID, entry, next, at); err != nil {
		return nil, err
	}

	e.logger.Debugw("participant left",
		"room_id", roomID,
		"participant_id", participantID,
		"was_host", left.IsHost,
		"remaining", len(next.Participants),
	)

	t := transition(next, left, at)
	t.RoomEmptied = onlineCount(current) > 0 && onlineCount(next) == 0
	return t, nil
}

// actor resolves the participant performing a playback or video action.
func actor(room *domain.Room, actorID domain.ParticipantID) (*domain.Participant, error) {
	p := room.Participant(actorID)
	if p == nil {
		return nil, domain.ErrNotJoined
	}
	return p, nil
}

func clampPosition(position time.Duration) time.Duration {
	if position < 0 {
		return 0
	}
	return position
}

func (e *roomEngine) SetPlayback(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, playing bool, position time.Duration) (*domain.Transition, error) {
	return e.playback(ctx, roomID, actorID, func(room *domain.Room) {
		room.Playing = playing
		room.Position = clampPosition(position)
	})
}

func (e *roomEngine) Seek(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, position time.Duration) (*domain.Transition, error) {
	return e.playback(ctx, roomID, actorID, func(room *domain.Room) {
		room.Position = clampPosition(position)
	})
}

func (e *roomEngine) playback(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, apply func(*domain.Room)) (*domain.Transition, error) {
	entry, err := e.lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	current := entry.room.Load()
	if _, err := actor(current, actorID); err != nil {
		return nil, err
	}
	if e.config.HostOnlyPlayback && current.HostID != actorID {
		return nil, domain.ErrNotHost
	}

	next := current.Clone()
	at := e.commitTime(current)
	apply(next)
	p := next.Participant(actorID)
	p.LastSeen = at

	if err := e.commit(ctx, roomID, entry, next, at); err != nil {
		return nil, err
	}
	return transition(next, p, at), nil
}

func (e *roomEngine) ChangeVideo(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, video domain.Video) (*domain.Transition, error) {
	entry, err := e.lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	current := entry.room.Load()
	if _, err := actor(current, actorID); err != nil {
		return nil, err
	}
	if current.HostID != actorID {
		return nil, domain.ErrNotHost
	}

	next := current.Clone()
	at := e.commitTime(current)
	next.Video = &video
	next.Position = 0
	next.Playing = false
	p := next.Participant(actorID)
	p.LastSeen = at

	if err := e.commit(ctx, roomID, entry, next, at); err != nil {
		return nil, err
	}

	e.logger.Infow("video changed",
		"room_id", roomID,
		"participant_id", actorID,
		"video_url", video.URL,
	)
	return transition(next, p, at), nil
}

// Heartbeat refreshes last-seen in memory only. It does not enter the
// room's critical section; the refreshed value is persisted with the next
// committed transition.
func (e *roomEngine) Heartbeat(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID) error {
	entry, room, err := e.read(ctx, roomID)
	if err != nil {
		return err
	}
	if _, err := actor(room, actorID); err != nil {
		return err
	}
	entry.seen.Store(actorID, e.now())
	return nil
}

func (e *roomEngine) Snapshot(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	entry, room, err := e.read(ctx, roomID)
	if err != nil {
		return nil, err
	}
	snapshot := room.Clone()
	applySeen(entry, snapshot)
	return snapshot, nil
}

// Cached returns the in-memory state of a loaded room without touching
// the store.
func (e *roomEngine) Cached(roomID domain.RoomID) (*domain.Room, bool) {
	e.mu.Lock()
	entry, ok := e.entries[roomID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	room := entry.room.Load()
	if room == nil {
		return nil, false
	}
	snapshot := room.Clone()
	applySeen(entry, snapshot)
	return snapshot, true
}

// Evict drops the cached state of a room, typically after it was deleted
// from the store. A transition already in flight finishes first.
func (e *roomEngine) Evict(roomID domain.RoomID) {
	e.mu.Lock()
	entry, ok := e.entries[roomID]
	e.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	if !entry.evicted {
		e.detach(roomID, entry)
	}
	entry.mu.Unlock()
}
