package memory

import (
	"sync"
	"time"

	"github.com/pbxgate/pbxgate/internal/domain/ratelimit"
)

// LoginThrottle implements ratelimit.Limiter with GCRA in memory. One
// theoretical arrival time is kept per key; keys that have fully recovered
// are removed by Sweep.
type LoginThrottle struct {
	mu    sync.Mutex
	cells map[string]time.Time
	limit ratelimit.Limit
	now   func() time.Time
}

// LoginThrottleOption configures a LoginThrottle.
type LoginThrottleOption func(*LoginThrottle)

// WithThrottleClock replaces time.Now.
func WithThrottleClock(now func() time.Time) LoginThrottleOption {
	return func(t *LoginThrottle) {
		t.now = now
	}
}

// NewLoginThrottle creates a throttle enforcing limit on every key.
func NewLoginThrottle(limit ratelimit.Limit, opts ...LoginThrottleOption) *LoginThrottle {
	t := &LoginThrottle{
		cells: make(map[string]time.Time),
		limit: limit.Normalize(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow consumes one event for key if the budget permits it.
func (t *LoginThrottle) Allow(key string) ratelimit.Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	emission := t.limit.Emission()
	burstOffset := time.Duration(t.limit.Burst) * emission

	tat, ok := t.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	newTAT := tat.Add(emission)
	if newTAT.Sub(now) > burstOffset {
		return ratelimit.Result{
			Allowed:    false,
			RetryAfter: newTAT.Sub(now) - burstOffset,
			ResetAfter: tat.Sub(now),
		}
	}
	t.cells[key] = newTAT

	remaining := int((burstOffset - newTAT.Sub(now)) / emission)
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Result{
		Allowed:    true,
		Remaining:  remaining,
		ResetAfter: newTAT.Sub(now),
	}
}

// Sweep drops keys whose budget is full again and returns how many were
// removed.
func (t *LoginThrottle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, tat := range t.cells {
		if !tat.After(now) {
			delete(t.cells, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (t *LoginThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cells)
}

var _ ratelimit.Limiter = (*LoginThrottle)(nil)
