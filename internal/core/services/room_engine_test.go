package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
	"syncplay/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testStart = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func seedRoom(t *testing.T, repo ports.RoomRepository, id domain.RoomID, hostID domain.ParticipantID) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &domain.Room{
		ID:        id,
		Name:      "Movie night",
		HostID:    hostID,
		CreatedAt: testStart,
		UpdatedAt: testStart,
	}))
}

func newTestEngine(t *testing.T, repo ports.RoomRepository, cfg EngineConfig) *roomEngine {
	t.Helper()
	e := NewRoomEngine(repo, cfg, zaptest.NewLogger(t).Sugar()).(*roomEngine)
	now := testStart
	var mu sync.Mutex
	e.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return e
}

func hostCount(room *domain.Room) int {
	n := 0
	for _, p := range room.Participants {
		if p.IsHost {
			n++
		}
	}
	return n
}

func TestRoomEngine_JoinScenario(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	tr, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)
	assert.True(t, tr.RoomActivated)
	assert.False(t, tr.Reconnected)
	assert.True(t, tr.Participant.IsHost)
	assert.False(t, tr.Room.Playing)
	assert.Equal(t, time.Duration(0), tr.Room.Position)

	tr, err = e.Join(ctx, "room-1", "U2", "Bob")
	require.NoError(t, err)
	assert.False(t, tr.RoomActivated)
	assert.False(t, tr.Participant.IsHost)
	require.Len(t, tr.Room.Participants, 2)
	assert.Equal(t, "Alice", tr.Room.Participants[0].Name)

	tr, err = e.SetPlayback(ctx, "room-1", "H", true, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, tr.Room.Playing)

	stored, err := repo.GetByID(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, stored.Playing)
	assert.Equal(t, 10*time.Second, stored.Position)
	assert.Len(t, stored.Participants, 2)
}

func TestRoomEngine_Join(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		setup    func(e *roomEngine)
		pid      domain.ParticipantID
		userName string
		wantErr  error
		// unreserved seeds the room without a host id
		unreserved bool
		check      func(t *testing.T, tr *domain.Transition)
	}{
		{
			name:     "unknown room",
			pid:      "p1",
			userName: "Alice",
			wantErr:  domain.ErrRoomNotFound,
		},
		{
			name: "name held by online participant",
			setup: func(e *roomEngine) {
				_, _ = e.Join(ctx, "room-1", "p1", "Alice")
			},
			pid:      "p2",
			userName: "Alice",
			wantErr:  domain.ErrNameTaken,
		},
		{
			name: "same id reconnects",
			setup: func(e *roomEngine) {
				_, _ = e.Join(ctx, "room-1", "p1", "Alice")
			},
			pid:      "p1",
			userName: "Alice",
			check: func(t *testing.T, tr *domain.Transition) {
				assert.True(t, tr.Reconnected)
				assert.Len(t, tr.Room.Participants, 1)
				assert.Equal(t, "Alice", tr.Participant.Name)
			},
		},
		{
			name:       "first joiner of a room without host becomes host",
			pid:        "stranger",
			userName:   "Carol",
			unreserved: true,
			check: func(t *testing.T, tr *domain.Transition) {
				assert.True(t, tr.Participant.IsHost)
				assert.Equal(t, domain.ParticipantID("stranger"), tr.Room.HostID)
				assert.Equal(t, 1, hostCount(tr.Room))
			},
		},
		{
			name:     "stranger joining first does not take the reserved host slot",
			pid:      "stranger",
			userName: "Carol",
			check: func(t *testing.T, tr *domain.Transition) {
				assert.False(t, tr.Participant.IsHost)
				assert.Equal(t, domain.ParticipantID("H"), tr.Room.HostID)
				assert.Equal(t, 0, hostCount(tr.Room))
			},
		},
		{
			name: "reserved host joins after a stranger",
			setup: func(e *roomEngine) {
				_, _ = e.Join(ctx, "room-1", "stranger", "Carol")
			},
			pid:      "H",
			userName: "Alice",
			check: func(t *testing.T, tr *domain.Transition) {
				assert.True(t, tr.Participant.IsHost)
				assert.False(t, tr.Room.Participant("stranger").IsHost)
				assert.Equal(t, 1, hostCount(tr.Room))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewMemoryRoomRepository()
			if tt.wantErr != domain.ErrRoomNotFound {
				hostID := domain.ParticipantID("H")
				if tt.unreserved {
					hostID = ""
				}
				seedRoom(t, repo, "room-1", hostID)
			}
			e := newTestEngine(t, repo, EngineConfig{})
			if tt.setup != nil {
				tt.setup(e)
			}

			tr, err := e.Join(ctx, "room-1", tt.pid, tt.userName)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, tr)
				return
			}
			require.NoError(t, err)
			tt.check(t, tr)
		})
	}
}

func TestRoomEngine_LeaveVacatesHost(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	_, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "room-1", "U2", "Bob")
	require.NoError(t, err)

	tr, err := e.Leave(ctx, "room-1", "H", nil)
	require.NoError(t, err)
	assert.False(t, tr.RoomEmptied)
	assert.Equal(t, domain.ParticipantID("H"), tr.Participant.ID)
	assert.Equal(t, domain.ParticipantID(""), tr.Room.HostID)
	assert.Equal(t, 0, hostCount(tr.Room))
	require.Len(t, tr.Room.Participants, 1)
	assert.False(t, tr.Room.Participants[0].IsHost)

	// The next joiner fills the vacant slot.
	tr, err = e.Join(ctx, "room-1", "U3", "Carol")
	require.NoError(t, err)
	assert.True(t, tr.Participant.IsHost)
	assert.Equal(t, 1, hostCount(tr.Room))

	_, err = e.Leave(ctx, "room-1", "U2", nil)
	require.NoError(t, err)
	tr, err = e.Leave(ctx, "room-1", "U3", nil)
	require.NoError(t, err)
	assert.True(t, tr.RoomEmptied)
	assert.Equal(t, domain.RoomEmpty, tr.Room.State())

	_, err = e.Leave(ctx, "room-1", "U3", nil)
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestRoomEngine_Playback(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, cfg EngineConfig) *roomEngine {
		repo := memory.NewMemoryRoomRepository()
		seedRoom(t, repo, "room-1", "H")
		e := newTestEngine(t, repo, cfg)
		_, err := e.Join(ctx, "room-1", "H", "Alice")
		require.NoError(t, err)
		_, err = e.Join(ctx, "room-1", "U2", "Bob")
		require.NoError(t, err)
		return e
	}

	t.Run("any participant controls playback by default", func(t *testing.T) {
		e := setup(t, EngineConfig{})

		tr, err := e.SetPlayback(ctx, "room-1", "U2", true, 5*time.Second)
		require.NoError(t, err)
		assert.True(t, tr.Room.Playing)
		assert.Equal(t, 5*time.Second, tr.Room.Position)

		tr, err = e.Seek(ctx, "room-1", "H", 42*time.Second)
		require.NoError(t, err)
		assert.True(t, tr.Room.Playing, "seek keeps the playing flag")
		assert.Equal(t, 42*time.Second, tr.Room.Position)

		tr, err = e.SetPlayback(ctx, "room-1", "H", false, -3*time.Second)
		require.NoError(t, err)
		assert.False(t, tr.Room.Playing)
		assert.Equal(t, time.Duration(0), tr.Room.Position)
	})

	t.Run("host only playback rejects others", func(t *testing.T) {
		e := setup(t, EngineConfig{HostOnlyPlayback: true})

		_, err := e.SetPlayback(ctx, "room-1", "U2", true, time.Second)
		assert.ErrorIs(t, err, domain.ErrNotHost)
		_, err = e.Seek(ctx, "room-1", "U2", time.Second)
		assert.ErrorIs(t, err, domain.ErrNotHost)

		room, err := e.Snapshot(ctx, "room-1")
		require.NoError(t, err)
		assert.False(t, room.Playing)

		_, err = e.SetPlayback(ctx, "room-1", "H", true, time.Second)
		assert.NoError(t, err)
	})

	t.Run("unknown actor", func(t *testing.T) {
		e := setup(t, EngineConfig{})
		_, err := e.SetPlayback(ctx, "room-1", "ghost", true, 0)
		assert.ErrorIs(t, err, domain.ErrNotJoined)
	})
}

func TestRoomEngine_ChangeVideo(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	_, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "room-1", "U2", "Bob")
	require.NoError(t, err)
	_, err = e.SetPlayback(ctx, "room-1", "H", true, 30*time.Second)
	require.NoError(t, err)

	before, err := e.Snapshot(ctx, "room-1")
	require.NoError(t, err)

	_, err = e.ChangeVideo(ctx, "room-1", "U2", domain.Video{URL: "https://example.com/b.mp4"})
	assert.ErrorIs(t, err, domain.ErrNotHost)

	after, err := e.Snapshot(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected change leaves state untouched")

	tr, err := e.ChangeVideo(ctx, "room-1", "H", domain.Video{URL: "https://example.com/a.mp4", Title: "Trailer"})
	require.NoError(t, err)
	require.NotNil(t, tr.Room.Video)
	assert.Equal(t, "Trailer", tr.Room.Video.Title)
	assert.False(t, tr.Room.Playing)
	assert.Equal(t, time.Duration(0), tr.Room.Position)
}

func TestRoomEngine_Heartbeat(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	tr, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)
	joinedSeen := tr.Participant.LastSeen

	require.NoError(t, e.Heartbeat(ctx, "room-1", "H"))
	assert.ErrorIs(t, e.Heartbeat(ctx, "room-1", "ghost"), domain.ErrNotJoined)

	room, err := e.Snapshot(ctx, "room-1")
	require.NoError(t, err)
	beat := room.Participant("H").LastSeen
	assert.True(t, beat.After(joinedSeen))

	stored, err := repo.GetByID(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, joinedSeen, stored.Participant("H").LastSeen, "heartbeats are not persisted on their own")

	// The next commit carries the heartbeat along.
	_, err = e.Join(ctx, "room-1", "U2", "Bob")
	require.NoError(t, err)
	stored, err = repo.GetByID(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, beat, stored.Participant("H").LastSeen)
}

func TestRoomEngine_HeartbeatDoesNotWaitForRoomLock(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	_, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)

	entry := e.entry("room-1")
	entry.mu.Lock()
	defer entry.mu.Unlock()

	done := make(chan error, 2)
	go func() {
		done <- e.Heartbeat(ctx, "room-1", "H")
		_, err := e.Snapshot(ctx, "room-1")
		done <- err
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("read blocked behind the room lock")
		}
	}
}

func TestRoomEngine_LeaveStaysWhileConnected(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	_, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)

	tr, err := e.Leave(ctx, "room-1", "H", func() bool { return true })
	assert.ErrorIs(t, err, domain.ErrParticipantConnected)
	assert.Nil(t, tr)
	room, err := e.Snapshot(ctx, "room-1")
	require.NoError(t, err)
	assert.NotNil(t, room.Participant("H"))

	tr, err = e.Leave(ctx, "room-1", "H", func() bool { return false })
	require.NoError(t, err)
	assert.True(t, tr.RoomEmptied)
}

func TestRoomEngine_StaleParticipantsAfterRestart(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.Room{
		ID:     "room-1",
		Name:   "Movie night",
		HostID: "H",
		Participants: []*domain.Participant{
			{ID: "H", Name: "Alice", IsHost: true, Online: true, JoinedAt: testStart, LastSeen: testStart},
			{ID: "U2", Name: "Bob", Online: true, JoinedAt: testStart, LastSeen: testStart},
		},
		CreatedAt: testStart,
		UpdatedAt: testStart,
	}))
	e := newTestEngine(t, repo, EngineConfig{})

	room, err := e.Snapshot(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, room.Participant("H").Online)
	assert.False(t, room.Participant("U2").Online)

	// Same name, new identity: the stale guest record is replaced.
	tr, err := e.Join(ctx, "room-1", "B2", "Bob")
	require.NoError(t, err)
	assert.Nil(t, tr.Room.Participant("U2"))
	assert.False(t, tr.Participant.IsHost)
	assert.True(t, tr.RoomActivated)

	// The offline host keeps both its name and its slot.
	_, err = e.Join(ctx, "room-1", "A2", "Alice")
	assert.ErrorIs(t, err, domain.ErrNameTaken)
	room, err = e.Snapshot(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantID("H"), room.HostID)
	assert.Equal(t, 1, hostCount(room))
}

func TestRoomEngine_OfflineHostKeepsSlot(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.Room{
		ID:     "room-1",
		Name:   "Movie night",
		HostID: "H",
		Participants: []*domain.Participant{
			{ID: "H", Name: "Alice", IsHost: true, JoinedAt: testStart, LastSeen: testStart},
		},
		CreatedAt: testStart,
		UpdatedAt: testStart,
	}))
	e := newTestEngine(t, repo, EngineConfig{})

	tr, err := e.Join(ctx, "room-1", "U2", "Bob")
	require.NoError(t, err)
	assert.False(t, tr.Participant.IsHost)
	assert.True(t, tr.Room.Participant("H").IsHost)

	_, err = e.ChangeVideo(ctx, "room-1", "U2", domain.Video{URL: "https://example.com/a.mp4"})
	assert.ErrorIs(t, err, domain.ErrNotHost)

	tr, err = e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)
	assert.True(t, tr.Reconnected)
	assert.True(t, tr.Participant.IsHost)
	assert.True(t, tr.Participant.Online)
	assert.Equal(t, 1, hostCount(tr.Room))
}

func TestRoomEngine_Cached(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	_, ok := e.Cached("room-1")
	assert.False(t, ok, "nothing is loaded before first use")

	_, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)
	room, ok := e.Cached("room-1")
	require.True(t, ok)
	assert.Len(t, room.Participants, 1)

	e.Evict("room-1")
	_, ok = e.Cached("room-1")
	assert.False(t, ok)
}

type failingRepo struct {
	ports.RoomRepository
	failUpdates bool
}

func (f *failingRepo) Update(ctx context.Context, room *domain.Room) error {
	if f.failUpdates {
		return errors.New("disk full")
	}
	return f.RoomRepository.Update(ctx, room)
}

func TestRoomEngine_StoreFailureLeavesStateUnchanged(t *testing.T) {
	inner := memory.NewMemoryRoomRepository()
	seedRoom(t, inner, "room-1", "H")
	repo := &failingRepo{RoomRepository: inner}
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	_, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)

	repo.failUpdates = true
	_, err = e.SetPlayback(ctx, "room-1", "H", true, 10*time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRoomNotFound)

	room, err := e.Snapshot(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, room.Playing)
	assert.Equal(t, time.Duration(0), room.Position)
}

func TestRoomEngine_DeletedRoomIsEvicted(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	_, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "room-1"))
	_, err = e.SetPlayback(ctx, "room-1", "H", true, 0)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = e.Snapshot(ctx, "room-1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	seedRoom(t, repo, "room-1", "H")
	e.Evict("room-1")
	room, err := e.Snapshot(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, room.Participants)
}

func TestRoomEngine_ConcurrentMutationsKeepInvariants(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	seedRoom(t, repo, "room-2", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, roomID := range []domain.RoomID{"room-1", "room-2"} {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(roomID domain.RoomID, i int) {
				defer wg.Done()
				pid := domain.ParticipantID(fmt.Sprintf("p%d", i))
				if _, err := e.Join(ctx, roomID, pid, fmt.Sprintf("user-%d", i%10)); err != nil {
					return
				}
				_, _ = e.SetPlayback(ctx, roomID, pid, i%2 == 0, time.Duration(i)*time.Second)
				_, _ = e.Seek(ctx, roomID, pid, time.Duration(i)*time.Second)
				if i%3 == 0 {
					_, _ = e.Leave(ctx, roomID, pid, nil)
				}
			}(roomID, i)
		}
	}
	wg.Wait()

	for _, roomID := range []domain.RoomID{"room-1", "room-2"} {
		room, err := e.Snapshot(ctx, roomID)
		require.NoError(t, err)
		assert.LessOrEqual(t, hostCount(room), 1)

		names := map[string]bool{}
		for _, p := range room.Participants {
			assert.False(t, names[p.Name], "duplicate name %s", p.Name)
			names[p.Name] = true
		}

		stored, err := repo.GetByID(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, len(room.Participants), len(stored.Participants))
		assert.True(t, stored.UpdatedAt.Equal(room.UpdatedAt))
	}
}

func TestRoomEngine_CommitTimesIncrease(t *testing.T) {
	repo := memory.NewMemoryRoomRepository()
	seedRoom(t, repo, "room-1", "H")
	e := newTestEngine(t, repo, EngineConfig{})
	frozen := testStart
	e.now = func() time.Time { return frozen }
	ctx := context.Background()

	first, err := e.Join(ctx, "room-1", "H", "Alice")
	require.NoError(t, err)
	second, err := e.Seek(ctx, "room-1", "H", time.Second)
	require.NoError(t, err)

	assert.True(t, first.At.After(testStart))
	assert.True(t, second.At.After(first.At))
}
