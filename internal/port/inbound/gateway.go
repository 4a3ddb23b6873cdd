// Package inbound defines the core API the route layers call into.
package inbound

import (
	"context"

	"github.com/pbxgate/pbxgate/internal/domain/cache"
	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/service"
)

// Authenticator runs the PBX login sequences.
type Authenticator interface {
	Login(ctx context.Context, user, password string) (*service.LoginResult, error)
	Challenge(ctx context.Context, user string) *service.ChallengeResult
	TokenLogin(ctx context.Context, user, token string) (*pbx.Reply, error)
	Logout(ctx context.Context, user, cookie string) (*pbx.Reply, error)
}

// SessionDirectory gives access to stored PBX sessions.
type SessionDirectory interface {
	GetSession(user string) (*session.Record, error)
	GetCookie(user string) (string, error)
	ListAll() []session.View
	ActiveSessions() []session.View
	StoreSimple(user, cookie string) *session.Record
	Validate(user, cookie string) bool
	Delete(user string) bool
}

// RecordingFetcher downloads call recordings.
type RecordingFetcher interface {
	Fetch(ctx context.Context, req service.RecordingRequest) *service.RecordingResult
	Stream(ctx context.Context, req service.RecordingRequest) (*pbx.Stream, error)
}

// CDRReporter queries call detail records.
type CDRReporter interface {
	Query(ctx context.Context, q service.CDRQuery) *service.CDRResult
}

// CallController originates calls.
type CallController interface {
	MakeCall(ctx context.Context, req service.CallRequest) (*pbx.Reply, error)
}

// CacheAdmin manages the artifact cache.
type CacheAdmin interface {
	ClearAll() int
	ClearByPattern(pattern string) int
	Status() cache.Status
}

// Sweeper runs one expiry pass over every registered store.
type Sweeper interface {
	SweepOnce() service.SweepReport
}

var (
	_ Authenticator    = (*service.AuthService)(nil)
	_ SessionDirectory = (*service.SessionService)(nil)
	_ RecordingFetcher = (*service.RecordingService)(nil)
	_ CDRReporter      = (*service.CDRService)(nil)
	_ CallController   = (*service.CallService)(nil)
	_ CacheAdmin       = (*service.CacheService)(nil)
	_ Sweeper          = (*service.Reaper)(nil)
)
