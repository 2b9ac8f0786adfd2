package sql

import (
	"encoding/json"
	"time"

	"syncplay/internal/core/domain"
)

type RoomModel struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	Name       string    `gorm:"type:varchar(100);not null"`
	HostID     string    `gorm:"type:varchar(100)"`
	VideoURL   string    `gorm:"type:text"`
	VideoTitle string    `gorm:"type:varchar(255)"`
	PositionMs int64     `gorm:"not null;default:0"`
	IsPlaying  bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false;index"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (RoomModel) TableName() string {
	return "rooms"
}

type ParticipantModel struct {
	RoomID   string    `gorm:"type:varchar(36);primaryKey;uniqueIndex:idx_participants_room_name,priority:1"`
	ID       string    `gorm:"type:varchar(100);primaryKey"`
	Name     string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_participants_room_name,priority:2"`
	IsHost   bool      `gorm:"not null;default:false"`
	IsOnline bool      `gorm:"not null;default:false"`
	JoinedAt time.Time `gorm:"not null"`
	LastSeen time.Time `gorm:"not null;index"`
}

func (ParticipantModel) TableName() string {
	return "participants"
}

type EventModel struct {
	ID            string    `gorm:"type:varchar(36);primaryKey"`
	RoomID        string    `gorm:"type:varchar(36);not null;index:idx_events_room_time,priority:1"`
	ParticipantID string    `gorm:"type:varchar(100)"`
	Type          string    `gorm:"type:varchar(20);not null"`
	Payload       string    `gorm:"type:text"`
	Timestamp     time.Time `gorm:"not null;index:idx_events_room_time,priority:2"`
}

func (EventModel) TableName() string {
	return "events"
}

func roomToModel(r *domain.Room) (*RoomModel, []ParticipantModel) {
	m := &RoomModel{
		ID:         string(r.ID),
		Name:       r.Name,
		HostID:     string(r.HostID),
		PositionMs: r.Position.Milliseconds(),
		IsPlaying:  r.Playing,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Video != nil {
		m.VideoURL = r.Video.URL
		m.VideoTitle = r.Video.Title
	}

	participants := make([]ParticipantModel, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = ParticipantModel{
			RoomID:   string(r.ID),
			ID:       string(p.ID),
			Name:     p.Name,
			IsHost:   p.IsHost,
			IsOnline: p.Online,
			JoinedAt: p.JoinedAt,
			LastSeen: p.LastSeen,
		}
	}
	return m, participants
}

func (m *RoomModel) toDomain(participants []ParticipantModel) *domain.Room {
	r := &domain.Room{
		ID:           domain.RoomID(m.ID),
		Name:         m.Name,
		HostID:       domain.ParticipantID(m.HostID),
		Position:     time.Duration(m.PositionMs) * time.Millisecond,
		Playing:      m.IsPlaying,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Participants: make([]*domain.Participant, 0, len(participants)),
	}
	if m.VideoURL != "" {
		r.Video = &domain.Video{URL: m.VideoURL, Title: m.VideoTitle}
	}
	for _, p := range participants {
		r.Participants = append(r.Participants, &domain.Participant{
			ID:       domain.ParticipantID(p.ID),
			Name:     p.Name,
			IsHost:   p.IsHost,
			Online:   p.IsOnline,
			JoinedAt: p.JoinedAt,
			LastSeen: p.LastSeen,
		})
	}
	return r
}

func eventToModel(e *domain.Event) *EventModel {
	return &EventModel{
		ID:            e.ID,
		RoomID:        string(e.RoomID),
		ParticipantID: string(e.ParticipantID),
		Type:          string(e.Type),
		Payload:       string(e.Payload),
		Timestamp:     e.Timestamp,
	}
}

func (m *EventModel) toDomain() *domain.Event {
	e := &domain.Event{
		ID:            m.ID,
		RoomID:        domain.RoomID(m.RoomID),
		ParticipantID: domain.ParticipantID(m.ParticipantID),
		Type:          domain.EventType(m.Type),
		Timestamp:     m.Timestamp,
	}
	if m.Payload != "" {
		e.Payload = json.RawMessage(m.Payload)
	}
	return e
}
