package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRoomID generates a unique room ID
func NewRoomID() string {
	return uuid.NewString()
}

// NewParticipantID generates a unique participant ID
func NewParticipantID() string {
	return uuid.NewString()
}

// NewSessionHandle generates a unique connection handle
func NewSessionHandle() string {
	return GenerateID("session")
}

// NewEventID generates a unique event ID
func NewEventID() string {
	return uuid.NewString()
}

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
