package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"syncplay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchiveService(t *testing.T) (*ArchiveService, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	return NewArchiveService(storage, "1.0.0"), dir
}

func TestArchiveService_SaveAndLoad(t *testing.T) {
	service, dir := newArchiveService(t)
	service.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rooms := []*domain.Room{
		{
			ID:        "r1",
			Name:      "Movie night",
			HostID:    "p1",
			Video:     &domain.Video{URL: "https://example.com/v.mp4", Title: "V"},
			Position:  90 * time.Second,
			CreatedAt: created,
			UpdatedAt: created,
			Participants: []*domain.Participant{
				{ID: "p1", Name: "alice", IsHost: true, JoinedAt: created},
			},
		},
		{ID: "r2", Name: "Empty", CreatedAt: created, UpdatedAt: created},
	}

	name, err := service.Save(context.Background(), rooms)
	require.NoError(t, err)
	assert.Equal(t, "rooms-20240501-103000.000.json", name)
	_, err = os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)

	archive, err := service.Load(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", archive.Version)
	require.Len(t, archive.Rooms, 2)
	assert.Equal(t, domain.RoomID("r1"), archive.Rooms[0].ID)
	assert.Equal(t, 90.0, archive.Rooms[0].CurrentPosition)
	require.NotNil(t, archive.Rooms[0].CurrentVideoURL)
	assert.Equal(t, "https://example.com/v.mp4", *archive.Rooms[0].CurrentVideoURL)
	require.Len(t, archive.Rooms[0].Users, 1)
	assert.Nil(t, archive.Rooms[1].CurrentVideoURL)
}

func TestArchiveService_ListAndDelete(t *testing.T) {
	service, dir := newArchiveService(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	times := []time.Time{
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, ts := range times {
		ts := ts
		service.now = func() time.Time { return ts }
		_, err := service.Save(context.Background(), nil)
		require.NoError(t, err)
	}

	names, err := service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.True(t, strings.HasPrefix(names[0], "rooms-20240501"))

	require.NoError(t, service.Delete(context.Background(), names[0]))
	names, err = service.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestFileStorage_RejectsPathNames(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape.json", "a/b.json", ".hidden"} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, storage.Save(context.Background(), name, strings.NewReader("{}")))
			_, err := storage.Load(context.Background(), name)
			assert.Error(t, err)
		})
	}
}

func TestArchiveService_LoadMissing(t *testing.T) {
	service, _ := newArchiveService(t)
	_, err := service.Load(context.Background(), "rooms-missing.json")
	assert.Error(t, err)
}
