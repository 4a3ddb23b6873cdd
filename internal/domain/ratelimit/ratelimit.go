// Package ratelimit defines the GCRA budgets that slow down credential
// guessing through the gateway and abuse of the admin API.
package ratelimit

import (
	"fmt"
	"time"
)

// Limit is a GCRA budget: Rate events per Period with up to Burst at once.
type Limit struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// Normalize fills zero fields. A zero Rate becomes 1 and a zero Burst
// becomes Rate.
func (l Limit) Normalize() Limit {
	if l.Rate <= 0 {
		l.Rate = 1
	}
	if l.Burst <= 0 {
		l.Burst = l.Rate
	}
	if l.Period <= 0 {
		l.Period = time.Minute
	}
	return l
}

// Emission is the spacing between two events at the sustained rate.
func (l Limit) Emission() time.Duration {
	l = l.Normalize()
	return l.Period / time.Duration(l.Rate)
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}

// Limiter decides whether the event identified by key may proceed.
type Limiter interface {
	Allow(key string) Result
}

// Area separates the budgets of different entry points.
type Area string

const (
	AreaLogin Area = "login"
	AreaAdmin Area = "admin"
)

// Scope identifies what a throttle key is derived from.
type Scope string

const (
	ScopeIP   Scope = "ip"
	ScopeUser Scope = "user"
)

// Key returns "{area}:{scope}:{value}".
func Key(area Area, scope Scope, value string) string {
	return fmt.Sprintf("%s:%s:%s", area, scope, value)
}
