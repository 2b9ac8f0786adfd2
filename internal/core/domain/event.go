package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventJoin         EventType = "join"
	EventLeave        EventType = "leave"
	EventPlay         EventType = "play"
	EventPause        EventType = "pause"
	EventSeek         EventType = "seek"
	EventVideoChanged EventType = "video_changed"
	EventHeartbeat    EventType = "heartbeat"
	EventError        EventType = "error"
)

// Event is an immutable audit record of an accepted room transition.
type Event struct {
	ID            string
	RoomID        RoomID
	ParticipantID ParticipantID
	Type          EventType
	Payload       json.RawMessage
	Timestamp     time.Time
}
