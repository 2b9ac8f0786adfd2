package domain

import "time"

// SessionHandle identifies one live transport connection.
type SessionHandle string

type Session struct {
	Handle        SessionHandle
	RoomID        RoomID
	ParticipantID ParticipantID
	ConnectedAt   time.Time
	LastActivity  time.Time
}

func (s Session) Bound() bool {
	return s.ParticipantID != ""
}
