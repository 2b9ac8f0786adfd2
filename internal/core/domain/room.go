package domain

import (
	"time"
)

type RoomID string
type ParticipantID string

// RoomState reports whether anybody is in the room.
type RoomState string

const (
	RoomEmpty  RoomState = "empty"
	RoomActive RoomState = "active"
)

type Video struct {
	URL   string
	Title string
}

type Room struct {
	ID           RoomID
	Name         string
	HostID       ParticipantID
	Video        *Video
	Position     time.Duration
	Playing      bool
	Participants []*Participant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Participant struct {
	ID       ParticipantID
	Name     string
	IsHost   bool
	Online   bool
	JoinedAt time.Time
	LastSeen time.Time
}

func (r *Room) State() RoomState {
	if len(r.Participants) == 0 {
		return RoomEmpty
	}
	return RoomActive
}

func (r *Room) Participant(id ParticipantID) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) ParticipantByName(name string) *Participant {
	for _, p := range r.Participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Host returns the participant holding the host flag, if any.
func (r *Room) Host() *Participant {
	for _, p := range r.Participants {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// LastActivity is the most recent moment anybody was seen in the room.
func (r *Room) LastActivity() time.Time {
	last := r.UpdatedAt
	for _, p := range r.Participants {
		if p.LastSeen.After(last) {
			last = p.LastSeen
		}
	}
	return last
}

// Clone returns a deep copy that shares no mutable state with r.
func (r *Room) Clone() *Room {
	c := *r
	if r.Video != nil {
		v := *r.Video
		c.Video = &v
	}
	c.Participants = make([]*Participant, len(r.Participants))
	for i, p := range r.Participants {
		pc := *p
		c.Participants[i] = &pc
	}
	return &c
}

func (p *Participant) Clone() *Participant {
	c := *p
	return &c
}
