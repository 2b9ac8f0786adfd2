package domain

import "time"

// RoomSnapshot is the wire representation of a room shared by the
// websocket protocol and the REST API.
type RoomSnapshot struct {
	ID                RoomID                `json:"id"`
	Name              string                `json:"name"`
	HostID            ParticipantID         `json:"host_id"`
	CurrentVideoURL   *string               `json:"current_video_url"`
	CurrentVideoTitle *string               `json:"current_video_title"`
	CurrentPosition   float64               `json:"current_position"`
	IsPlaying         bool                  `json:"is_playing"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	Users             []ParticipantSnapshot `json:"users"`
}

type ParticipantSnapshot struct {
	ID       ParticipantID `json:"id"`
	Name     string        `json:"name"`
	IsHost   bool          `json:"is_host"`
	IsOnline bool          `json:"is_online"`
	JoinedAt time.Time     `json:"joined_at"`
}

func (r *Room) Snapshot() RoomSnapshot {
	s := RoomSnapshot{
		ID:              r.ID,
		Name:            r.Name,
		HostID:          r.HostID,
		CurrentPosition: r.Position.Seconds(),
		IsPlaying:       r.Playing,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Users:           make([]ParticipantSnapshot, len(r.Participants)),
	}
	if r.Video != nil {
		url, title := r.Video.URL, r.Video.Title
		s.CurrentVideoURL = &url
		s.CurrentVideoTitle = &title
	}
	for i, p := range r.Participants {
		s.Users[i] = p.Snapshot()
	}
	return s
}

func (p *Participant) Snapshot() ParticipantSnapshot {
	return ParticipantSnapshot{
		ID:       p.ID,
		Name:     p.Name,
		IsHost:   p.IsHost,
		IsOnline: p.Online,
		JoinedAt: p.JoinedAt,
	}
}
