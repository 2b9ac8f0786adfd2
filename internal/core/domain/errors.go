package domain

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomExists           = errors.New("room already exists")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrParticipantConnected = errors.New("participant still connected")
	ErrNameTaken            = errors.New("user name already taken")
	ErrNotHost              = errors.New("only the host can control playback")
	ErrNotJoined            = errors.New("session has not joined the room")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExists        = errors.New("session already registered")
	ErrSessionBound         = errors.New("session already bound to another participant")
	ErrSendBufferFull       = errors.New("session send buffer full")
	ErrSessionClosed        = errors.New("session closed")
)
