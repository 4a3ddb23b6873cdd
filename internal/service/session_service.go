package service

import (
	"crypto/subtle"
	"log/slog"

	"github.com/pbxgate/pbxgate/internal/domain/session"
)

// SessionService exposes the session store to the route layer.
type SessionService struct {
	sessions session.Store
	logger   *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions session.Store, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{sessions: sessions, logger: logger}
}

// GetSession returns the valid session of user or session.ErrSessionNotFound.
func (s *SessionService) GetSession(user string) (*session.Record, error) {
	return s.sessions.Get(user)
}

// GetCookie returns the cookie of user's valid session or
// session.ErrSessionNotFound.
func (s *SessionService) GetCookie(user string) (string, error) {
	return s.sessions.GetCookie(user)
}

// ListAll returns every stored session, expired ones included.
func (s *SessionService) ListAll() []session.View {
	return s.sessions.List()
}

// ActiveSessions returns the sessions that are still valid.
func (s *SessionService) ActiveSessions() []session.View {
	all := s.sessions.List()
	active := make([]session.View, 0, len(all))
	for _, v := range all {
		if !v.IsExpired {
			active = append(active, v)
		}
	}
	return active
}

// StoreSimple records a cookie obtained outside the login sequences.
func (s *SessionService) StoreSimple(user, cookie string) *session.Record {
	stored := s.sessions.Store(user, session.NewRecord(user, cookie, session.MethodSimpleStorage))
	s.logger.Info("session stored", "user", user, "method", string(session.MethodSimpleStorage),
		"cookie_length", len(cookie))
	return stored
}

// Validate reports whether cookie is the cookie of user's valid session.
func (s *SessionService) Validate(user, cookie string) bool {
	stored, err := s.sessions.GetCookie(user)
	if err != nil || cookie == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(cookie)) == 1
}

// Delete removes the session of user and reports whether one existed.
func (s *SessionService) Delete(user string) bool {
	return s.sessions.Delete(user)
}
