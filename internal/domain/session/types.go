// Package session models the PBX sessions held on behalf of users.
package session

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a stored session.
const DefaultTTL = 15 * time.Minute

// LoginMethod records which authentication path produced a session.
type LoginMethod string

const (
	// MethodPassword is the challenge/response password login.
	MethodPassword LoginMethod = "password"
	// MethodChallengeAutoLogin is the challenge followed by a token login.
	MethodChallengeAutoLogin LoginMethod = "challenge_auto_login"
	// MethodToken is the standalone token login.
	MethodToken LoginMethod = "token"
	// MethodSimpleStorage marks a cookie handed in directly by a caller.
	MethodSimpleStorage LoginMethod = "simple_storage"
)

// IsValid returns true if the method is a known login method.
func (m LoginMethod) IsValid() bool {
	switch m {
	case MethodPassword, MethodChallengeAutoLogin, MethodToken, MethodSimpleStorage:
		return true
	default:
		return false
	}
}

// idPrefix maps each method to the prefix of its session IDs.
func (m LoginMethod) idPrefix() string {
	switch m {
	case MethodPassword:
		return "pwd_sess_"
	case MethodChallengeAutoLogin:
		return "chal_sess_"
	case MethodToken:
		return "token_sess_"
	case MethodSimpleStorage:
		return "simple_sess_"
	default:
		return "sess_"
	}
}

// Record is the session held for one user. One record exists per user and a
// new login replaces it entirely.
type Record struct {
	User        string      `json:"user"`
	Cookie      string      `json:"cookie"`
	LoginMethod LoginMethod `json:"loginMethod"`
	SessionID   string      `json:"sessionId"`
	// LoginStatus is the PBX status of the login that produced the record.
	LoginStatus int       `json:"loginStatus"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	IsActive    bool      `json:"isActive"`
}

// NewRecord builds a record for user. Timestamps are assigned by the store.
func NewRecord(user, cookie string, method LoginMethod) *Record {
	return &Record{
		User:        user,
		Cookie:      cookie,
		LoginMethod: method,
		SessionID:   NewSessionID(method),
		IsActive:    true,
	}
}

// ValidAt reports whether the record is still usable at now.
func (r *Record) ValidAt(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// View is a diagnostic projection of a record, annotated relative to the
// time it was taken.
type View struct {
	Record
	IsExpired           bool  `json:"isExpired"`
	RemainingTTLSeconds int64 `json:"remainingTtlSeconds"`
}

// ViewAt annotates a copy of r relative to now.
func (r *Record) ViewAt(now time.Time) View {
	remaining := r.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return View{
		Record:              *r,
		IsExpired:           !r.ValidAt(now),
		RemainingTTLSeconds: int64(math.Floor(remaining.Seconds())),
	}
}

// NewSessionID returns a random identifier prefixed by the login method.
func NewSessionID(method LoginMethod) string {
	return method.idPrefix() + strings.ReplaceAll(uuid.NewString(), "-", "")
}
