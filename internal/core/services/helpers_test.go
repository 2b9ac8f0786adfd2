package services

import (
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
)

// stubRegistry is a no-op SessionRegistry for embedding in test fakes.
type stubRegistry struct {
	closeIdleCutoff time.Time
	closeIdleResult int
}

func (s *stubRegistry) Register(domain.RoomID, domain.SessionHandle, ports.SessionConn) error {
	return nil
}
func (s *stubRegistry) BindParticipant(domain.SessionHandle, domain.ParticipantID) error { return nil }
func (s *stubRegistry) UnbindParticipant(domain.SessionHandle)                           {}
func (s *stubRegistry) Unregister(domain.SessionHandle) (domain.Session, bool) {
	return domain.Session{}, false
}
func (s *stubRegistry) ListOthers(domain.RoomID, domain.SessionHandle) []ports.Recipient { return nil }
func (s *stubRegistry) Get(domain.SessionHandle) (domain.Session, bool) {
	return domain.Session{}, false
}
func (s *stubRegistry) Touch(domain.SessionHandle)                               {}
func (s *stubRegistry) HasParticipant(domain.RoomID, domain.ParticipantID) bool  { return false }
func (s *stubRegistry) CountInRoom(domain.RoomID) int                            { return 0 }
func (s *stubRegistry) Count() int                                               { return 0 }
func (s *stubRegistry) CloseParticipant(domain.RoomID, domain.ParticipantID) int { return 0 }
func (s *stubRegistry) CloseIdle(cutoff time.Time) int {
	s.closeIdleCutoff = cutoff
	return s.closeIdleResult
}
