package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pbxgate/pbxgate/internal/adapter/outbound/memory"
	"github.com/pbxgate/pbxgate/internal/domain/cache"
	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
)

// fakePBX scripts replies per action and records every request.
type fakePBX struct {
	mu       sync.Mutex
	requests []*pbx.Request

	call  map[string]func(*pbx.Request) (*pbx.Reply, error)
	fetch func(*pbx.Request) (*pbx.Payload, error)
	// fetchCtx, when set, replaces fetch and sees the call's context.
	fetchCtx func(context.Context, *pbx.Request) (*pbx.Payload, error)
	open  func(*pbx.Request) (*pbx.Stream, error)
}

func newFakePBX() *fakePBX {
	return &fakePBX{call: make(map[string]func(*pbx.Request) (*pbx.Reply, error))}
}

func (f *fakePBX) on(action string, fn func(*pbx.Request) (*pbx.Reply, error)) *fakePBX {
	f.call[action] = fn
	return f
}

func (f *fakePBX) record(req *pbx.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakePBX) Call(_ context.Context, _ outbound.Endpoint, req *pbx.Request) (*pbx.Reply, error) {
	f.record(req)
	fn, ok := f.call[req.Action]
	if !ok {
		return jsonReply(`{"status":-1}`), nil
	}
	return fn(req)
}

func (f *fakePBX) Fetch(ctx context.Context, _ outbound.Endpoint, req *pbx.Request) (*pbx.Payload, error) {
	f.record(req)
	if f.fetchCtx != nil {
		return f.fetchCtx(ctx, req)
	}
	return f.fetch(req)
}

func (f *fakePBX) Open(_ context.Context, _ outbound.Endpoint, req *pbx.Request) (*pbx.Stream, error) {
	f.record(req)
	return f.open(req)
}

func (f *fakePBX) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Action
	}
	return out
}

func (f *fakePBX) last(action string) *pbx.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Action == action {
			return f.requests[i]
		}
	}
	return nil
}

func jsonReply(body string, setCookies ...string) *pbx.Reply {
	return pbx.ParseReply(200, setCookies, []byte(body))
}

func replyWith(body string, setCookies ...string) func(*pbx.Request) (*pbx.Reply, error) {
	return func(*pbx.Request) (*pbx.Reply, error) {
		return jsonReply(body, setCookies...), nil
	}
}

func failWith(err error) func(*pbx.Request) (*pbx.Reply, error) {
	return func(*pbx.Request) (*pbx.Reply, error) {
		return nil, err
	}
}

func streamOf(body string) *pbx.Stream {
	return &pbx.Stream{
		HTTPStatus:    200,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(strings.NewReader(body)),
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStores(clock *fakeClock) (*memory.SessionStore, *memory.TTLCache[cache.Artifact]) {
	return memory.NewSessionStore(memory.WithSessionClock(clock.Now)),
		memory.NewTTLCache[cache.Artifact](memory.WithClock(clock.Now))
}
