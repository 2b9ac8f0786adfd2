package ports

import (
	"context"
	"time"

	"syncplay/internal/core/domain"
)

// RoomEngine serializes every mutation of a room through a single
// per-room critical section and commits each accepted change once.
type RoomEngine interface {
	Join(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID, name string) (*domain.Transition, error)
	Leave(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID, stay func() bool) (*domain.Transition, error)
	SetPlayback(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, playing bool, position time.Duration) (*domain.Transition, error)
	Seek(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, position time.Duration) (*domain.Transition, error)
	ChangeVideo(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, video domain.Video) (*domain.Transition, error)
	Heartbeat(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID) error
	Snapshot(ctx context.Context, roomID domain.RoomID) (*domain.Room, error)
	Cached(roomID domain.RoomID) (*domain.Room, bool)
	Evict(roomID domain.RoomID)
}

// RoomController applies room changes requested outside a websocket
// session and fans them out to the live ones.
type RoomController interface {
	LeaveRoom(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID) error
	ControlPlayback(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, action domain.EventType, position time.Duration) (*domain.Room, error)
	ChangeVideo(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, video domain.Video) (*domain.Room, error)
}

type RoomService interface {
	CreateRoom(ctx context.Context, name, hostName string) (*domain.Room, *domain.Participant, error)
	CheckJoin(ctx context.Context, roomID domain.RoomID, name string) (*domain.Room, domain.ParticipantID, error)
	GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error)
	ListActiveRooms(ctx context.Context) ([]*domain.Room, error)
	RecentEvents(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error)
}

// SessionConn is the outbound half of a live client connection.
type SessionConn interface {
	Send(data []byte) error
	Close() error
}

// Recipient pairs a session snapshot with the connection to reach it.
type Recipient struct {
	Session domain.Session
	Conn    SessionConn
}

type SessionRegistry interface {
	Register(roomID domain.RoomID, handle domain.SessionHandle, conn SessionConn) error
	BindParticipant(handle domain.SessionHandle, participantID domain.ParticipantID) error
	UnbindParticipant(handle domain.SessionHandle)
	Unregister(handle domain.SessionHandle) (domain.Session, bool)
	ListOthers(roomID domain.RoomID, exclude domain.SessionHandle) []Recipient
	Get(handle domain.SessionHandle) (domain.Session, bool)
	Touch(handle domain.SessionHandle)
	HasParticipant(roomID domain.RoomID, participantID domain.ParticipantID) bool
	CountInRoom(roomID domain.RoomID) int
	Count() int
	CloseIdle(cutoff time.Time) int
	CloseParticipant(roomID domain.RoomID, participantID domain.ParticipantID) int
}
