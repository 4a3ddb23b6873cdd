package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/pbxgate/pbxgate/internal/domain/session"
)

// SessionStore implements session.Store with an in-memory map keyed by user.
// Thread-safe for concurrent access. Expired records are removed lazily by
// Get and in bulk by Sweep.
type SessionStore struct {
	sessions map[string]*session.Record
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionTTL overrides session.DefaultTTL. Non-positive values are ignored.
func WithSessionTTL(ttl time.Duration) SessionStoreOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock sets the time source. Defaults to time.Now.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessionStore creates an empty session store.
func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]*session.Record),
		ttl:      session.DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the lifetime given to stored records.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Store inserts or replaces the record for user. CreatedAt, ExpiresAt and
// IsActive are always reset; the caller's record is not modified.
func (s *SessionStore) Store(user string, rec *session.Record) *session.Record {
	stored := copyRecord(rec)
	now := s.now().UTC()
	stored.User = user
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(s.ttl)
	stored.IsActive = true
	if stored.SessionID == "" {
		stored.SessionID = session.NewSessionID(stored.LoginMethod)
	}

	s.mu.Lock()
	s.sessions[user] = stored
	s.mu.Unlock()

	return copyRecord(stored)
}

// Get retrieves the record for user.
// Returns session.ErrSessionNotFound if it doesn't exist or is expired; an
// expired record is deleted on the way out.
func (s *SessionStore) Get(user string) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[user]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if !rec.ValidAt(s.now()) {
		delete(s.sessions, user)
		return nil, session.ErrSessionNotFound
	}
	return copyRecord(rec), nil
}

// GetCookie returns the cookie of the user's valid record.
func (s *SessionStore) GetCookie(user string) (string, error) {
	rec, err := s.Get(user)
	if err != nil {
		return "", err
	}
	return rec.Cookie, nil
}

// List returns all records sorted by user, annotated relative to now.
// Expired records are reported, not removed.
func (s *SessionStore) List() []session.View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	views := make([]session.View, 0, len(s.sessions))
	for _, rec := range s.sessions {
		views = append(views, rec.ViewAt(now))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].User < views[j].User })
	return views
}

// Delete removes the record for user.
func (s *SessionStore) Delete(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[user]
	delete(s.sessions, user)
	return ok
}

// Sweep removes every record with ExpiresAt <= now.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0
	for user, rec := range s.sessions {
		if !rec.ValidAt(now) {
			delete(s.sessions, user)
			cleaned++
		}
	}
	return cleaned
}

// Len returns the number of records currently stored.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func copyRecord(rec *session.Record) *session.Record {
	if rec == nil {
		return &session.Record{}
	}
	c := *rec
	return &c
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
