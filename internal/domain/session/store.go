package session

import "errors"

// Store keeps one Record per user with a fixed TTL.
// Implementations must be safe for concurrent use.
type Store interface {
	// Store inserts or replaces the record for user, resetting CreatedAt and
	// ExpiresAt. It returns the stored copy.
	Store(user string, rec *Record) *Record

	// Get returns the record if present and unexpired. An expired record is
	// deleted and ErrSessionNotFound returned.
	Get(user string) (*Record, error)

	// GetCookie returns the cookie of a valid record or ErrSessionNotFound.
	GetCookie(user string) (string, error)

	// List returns every stored record, expired ones included, annotated
	// with expiry information. It never deletes.
	List() []View

	// Delete removes the record for user and reports whether one existed.
	Delete(user string) bool

	// Sweep removes every record with ExpiresAt <= now and returns the count.
	Sweep() int

	// Len returns the number of stored records, expired ones included.
	Len() int
}

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("session not found")
