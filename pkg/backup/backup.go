package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"syncplay/internal/core/domain"
)

const archivePrefix = "rooms-"

// Archive is one saved batch of rooms.
type Archive struct {
	Version   string                `json:"version"`
	Timestamp time.Time             `json:"timestamp"`
	Rooms     []domain.RoomSnapshot `json:"rooms"`
}

// Storage defines interface for archive storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// ArchiveService writes room archives to a Storage.
type ArchiveService struct {
	storage Storage
	version string
	now     func() time.Time
}

func NewArchiveService(storage Storage, version string) *ArchiveService {
	return &ArchiveService{
		storage: storage,
		version: version,
		now:     time.Now,
	}
}

// Save archives rooms and returns the archive name.
func (s *ArchiveService) Save(ctx context.Context, rooms []*domain.Room) (string, error) {
	archive := &Archive{
		Version:   s.version,
		Timestamp: s.now().UTC(),
		Rooms:     make([]domain.RoomSnapshot, len(rooms)),
	}
	for i, room := range rooms {
		archive.Rooms[i] = room.Snapshot()
	}

	data, err := json.Marshal(archive)
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", archivePrefix, archive.Timestamp.Format("20060102-150405.000"))
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save archive: %w", err)
	}
	return name, nil
}

func (s *ArchiveService) Load(ctx context.Context, name string) (*Archive, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive: %w", err)
	}
	defer reader.Close()

	var archive Archive
	if err := json.NewDecoder(reader).Decode(&archive); err != nil {
		return nil, fmt.Errorf("failed to decode archive %s: %w", name, err)
	}
	return &archive, nil
}

func (s *ArchiveService) List(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, archivePrefix)
}

func (s *ArchiveService) Delete(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}
