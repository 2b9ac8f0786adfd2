package domain

import "time"

// Transition describes one committed change to a room.
type Transition struct {
	// Room is a snapshot taken right after the commit.
	Room        *Room
	Participant *Participant
	At          time.Time

	Reconnected bool
	// RoomActivated and RoomEmptied mark the first participant coming
	// online and the last online participant leaving.
	RoomActivated bool
	RoomEmptied   bool
}
