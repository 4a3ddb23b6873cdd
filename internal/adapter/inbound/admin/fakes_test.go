package admin

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pbxgate/pbxgate/internal/domain/cache"
	"github.com/pbxgate/pbxgate/internal/domain/ratelimit"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessions struct {
	mu    sync.Mutex
	views []session.View
}

func (f *fakeSessions) GetSession(string) (*session.Record, error) {
	return nil, session.ErrSessionNotFound
}

func (f *fakeSessions) GetCookie(string) (string, error) { return "", session.ErrSessionNotFound }

func (f *fakeSessions) ListAll() []session.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.View(nil), f.views...)
}

func (f *fakeSessions) ActiveSessions() []session.View {
	var out []session.View
	for _, v := range f.ListAll() {
		if !v.IsExpired {
			out = append(out, v)
		}
	}
	return out
}

func (f *fakeSessions) StoreSimple(user, cookie string) *session.Record {
	return session.NewRecord(user, cookie, session.MethodSimpleStorage)
}

func (f *fakeSessions) Validate(string, string) bool { return false }

func (f *fakeSessions) Delete(user string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range f.views {
		if v.User == user {
			f.views = append(f.views[:i], f.views[i+1:]...)
			return true
		}
	}
	return false
}

type fakeCache struct {
	mu      sync.Mutex
	keys    []string
	pattern string
}

func (f *fakeCache) ClearAll() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.keys)
	f.keys = nil
	return n
}

func (f *fakeCache) ClearByPattern(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pattern = pattern
	kept := f.keys[:0]
	n := 0
	for _, k := range f.keys {
		if strings.Contains(k, pattern) {
			n++
			continue
		}
		kept = append(kept, k)
	}
	f.keys = kept
	return n
}

func (f *fakeCache) Status() cache.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cache.Status{TotalEntries: len(f.keys), ActiveEntries: len(f.keys), MaxEntries: 1000}
}

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) SweepOnce() service.SweepReport {
	f.calls++
	return service.SweepReport{
		Removed: map[string]int{"cache": 2, "sessions": 1},
		At:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) ratelimit.Result {
	return ratelimit.Result{RetryAfter: 30 * time.Second}
}
