package session

import (
	"sync"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
)

type entry struct {
	session domain.Session
	conn    ports.SessionConn
}

// Registry tracks live connections per room. It never holds a lock while
// talking to a connection.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionHandle]*entry
	rooms    map[domain.RoomID]map[domain.SessionHandle]*entry
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionHandle]*entry),
		rooms:    make(map[domain.RoomID]map[domain.SessionHandle]*entry),
		now:      time.Now,
	}
}

func (r *Registry) Register(roomID domain.RoomID, handle domain.SessionHandle, conn ports.SessionConn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[handle]; exists {
		return domain.ErrSessionExists
	}

	now := r.now()
	e := &entry{
		session: domain.Session{
			Handle:       handle,
			RoomID:       roomID,
			ConnectedAt:  now,
			LastActivity: now,
		},
		conn: conn,
	}
	r.sessions[handle] = e

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[domain.SessionHandle]*entry)
		r.rooms[roomID] = members
	}
	members[handle] = e
	return nil
}

// BindParticipant attaches a participant identity to a session. Binding the
// same identity again is a no-op; a different one is rejected.
func (r *Registry) BindParticipant(handle domain.SessionHandle, participantID domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[handle]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if e.session.Bound() && e.session.ParticipantID != participantID {
		return domain.ErrSessionBound
	}
	e.session.ParticipantID = participantID
	e.session.LastActivity = r.now()
	return nil
}

// UnbindParticipant clears the identity of a session whose join failed.
func (r *Registry) UnbindParticipant(handle domain.SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[handle]; ok {
		e.session.ParticipantID = ""
	}
}

// Unregister removes the session and reports whether this call removed it.
// Only the first caller observes true.
func (r *Registry) Unregister(handle domain.SessionHandle) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[handle]
	if !ok {
		return domain.Session{}, false
	}
	delete(r.sessions, handle)

	if members, ok := r.rooms[e.session.RoomID]; ok {
		delete(members, handle)
		if len(members) == 0 {
			delete(r.rooms, e.session.RoomID)
		}
	}
	return e.session, true
}

// ListOthers returns a snapshot of every session in the room except exclude.
func (r *Registry) ListOthers(roomID domain.RoomID, exclude domain.SessionHandle) []ports.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	recipients := make([]ports.Recipient, 0, len(members))
	for handle, e := range members {
		if handle == exclude {
			continue
		}
		recipients = append(recipients, ports.Recipient{Session: e.session, Conn: e.conn})
	}
	return recipients
}

func (r *Registry) Get(handle domain.SessionHandle) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[handle]
	if !ok {
		return domain.Session{}, false
	}
	return e.session, true
}

func (r *Registry) Touch(handle domain.SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[handle]; ok {
		e.session.LastActivity = r.now()
	}
}

func (r *Registry) HasParticipant(roomID domain.RoomID, participantID domain.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.rooms[roomID] {
		if e.session.ParticipantID == participantID {
			return true
		}
	}
	return false
}

func (r *Registry) CountInRoom(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseIdle closes every connection with no activity since cutoff. The
// sessions stay registered until their connection handlers clean up.
func (r *Registry) CloseIdle(cutoff time.Time) int {
	r.mu.RLock()
	var idle []ports.SessionConn
	for _, e := range r.sessions {
		if e.session.LastActivity.Before(cutoff) {
			idle = append(idle, e.conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range idle {
		_ = conn.Close()
	}
	return len(idle)
}

// CloseParticipant closes every connection bound to the participant in the
// room. Like CloseIdle it leaves unregistering to the connection handlers.
func (r *Registry) CloseParticipant(roomID domain.RoomID, participantID domain.ParticipantID) int {
	r.mu.RLock()
	var bound []ports.SessionConn
	for _, e := range r.rooms[roomID] {
		if e.session.ParticipantID == participantID {
			bound = append(bound, e.conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range bound {
		_ = conn.Close()
	}
	return len(bound)
}

var _ ports.SessionRegistry = (*Registry)(nil)
