package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
	"syncplay/pkg/errors"
	"syncplay/pkg/utils"
	"syncplay/pkg/validation"

	"go.uber.org/zap"
)

const (
	DefaultRecentEvents = 50
	MaxRecentEvents     = 500

	minHostNameLength = 2
)

type roomService struct {
	repo           ports.RoomRepository
	engine         ports.RoomEngine
	eventLog       ports.EventLog
	activityWindow time.Duration
	logger         *zap.SugaredLogger
}

func NewRoomService(
	repo ports.RoomRepository,
	engine ports.RoomEngine,
	eventLog ports.EventLog,
	activityWindow time.Duration,
	logger *zap.SugaredLogger,
) ports.RoomService {
	return &roomService{
		repo:           repo,
		engine:         engine,
		eventLog:       eventLog,
		activityWindow: activityWindow,
		logger:         logger,
	}
}

// CreateRoom stores a new room holding its host as an offline participant.
// The host keeps the slot and its name until it leaves; joining over the
// websocket with the returned id brings it online.
func (s *roomService) CreateRoom(ctx context.Context, name, hostName string) (*domain.Room, *domain.Participant, error) {
	name = strings.TrimSpace(utils.SanitizeString(name))
	hostName = strings.TrimSpace(utils.SanitizeString(hostName))

	if err := validation.ValidateRoomName(name); err != nil {
		return nil, nil, errors.NewValidationError(err.Error())
	}
	if err := validation.ValidateDisplayName(hostName, minHostNameLength); err != nil {
		return nil, nil, errors.NewValidationError(err.Error())
	}

	now := utils.Now()
	host := &domain.Participant{
		ID:       domain.ParticipantID(utils.NewParticipantID()),
		Name:     hostName,
		IsHost:   true,
		JoinedAt: now,
		LastSeen: now,
	}
	room := &domain.Room{
		ID:           domain.RoomID(utils.NewRoomID()),
		Name:         name,
		HostID:       host.ID,
		Participants: []*domain.Participant{host.Clone()},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, room); err != nil {
		return nil, nil, fmt.Errorf("failed to create room: %w", err)
	}

	s.logger.Infow("room created",
		"room_id", room.ID,
		"name", room.Name,
		"host_id", host.ID,
	)
	return room, host, nil
}

// CheckJoin verifies that name is free and hands out a fresh participant id
// for the websocket join. Names of online participants and of the host are
// taken.
func (s *roomService) CheckJoin(ctx context.Context, roomID domain.RoomID, name string) (*domain.Room, domain.ParticipantID, error) {
	name = strings.TrimSpace(utils.SanitizeString(name))
	if err := validation.ValidateDisplayName(name, minHostNameLength); err != nil {
		return nil, "", errors.NewValidationError(err.Error())
	}

	room, err := s.engine.Snapshot(ctx, roomID)
	if err != nil {
		return nil, "", err
	}
	if holder := room.ParticipantByName(name); holder != nil && nameReserved(room, holder) {
		return nil, "", domain.ErrNameTaken
	}

	return room, domain.ParticipantID(utils.NewParticipantID()), nil
}

func (s *roomService) GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	return s.engine.Snapshot(ctx, roomID)
}

// ListActiveRooms returns rooms with at least one participant seen inside
// the activity window. Loaded rooms are judged by their live state: anybody
// online counts, and heartbeats not yet persisted are included.
func (s *roomService) ListActiveRooms(ctx context.Context) ([]*domain.Room, error) {
	rooms, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	cutoff := utils.Now().Add(-s.activityWindow)
	active := make([]*domain.Room, 0, len(rooms))
	for _, room := range rooms {
		live, loaded := s.engine.Cached(room.ID)
		if loaded {
			room = live
		}
		if (loaded && onlineCount(room) > 0) || seenSince(room, cutoff) {
			active = append(active, room)
		}
	}
	return active, nil
}

func seenSince(room *domain.Room, cutoff time.Time) bool {
	for _, p := range room.Participants {
		if p.LastSeen.After(cutoff) {
			return true
		}
	}
	return false
}

func (s *roomService) RecentEvents(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = DefaultRecentEvents
	}
	if limit > MaxRecentEvents {
		limit = MaxRecentEvents
	}

	if _, err := s.repo.GetByID(ctx, roomID); err != nil {
		return nil, err
	}
	return s.eventLog.Recent(ctx, roomID, limit)
}
