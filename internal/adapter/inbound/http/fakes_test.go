package http

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/ratelimit"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/service"
)

// fakeAuth records the last call and answers with canned values.
type fakeAuth struct {
	mu        sync.Mutex
	lastUser  string
	lastCred  string
	login     *service.LoginResult
	challenge *service.ChallengeResult
	reply     *pbx.Reply
	err       error
}

func (f *fakeAuth) record(user, cred string) {
	f.mu.Lock()
	f.lastUser, f.lastCred = user, cred
	f.mu.Unlock()
}

func (f *fakeAuth) Login(_ context.Context, user, password string) (*service.LoginResult, error) {
	f.record(user, password)
	return f.login, f.err
}

func (f *fakeAuth) Challenge(_ context.Context, user string) *service.ChallengeResult {
	f.record(user, "")
	return f.challenge
}

func (f *fakeAuth) TokenLogin(_ context.Context, user, token string) (*pbx.Reply, error) {
	f.record(user, token)
	return f.reply, f.err
}

func (f *fakeAuth) Logout(_ context.Context, user, cookie string) (*pbx.Reply, error) {
	f.record(user, cookie)
	return f.reply, f.err
}

// fakeSessions keeps records in a map.
type fakeSessions struct {
	mu      sync.Mutex
	records map[string]*session.Record
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{records: make(map[string]*session.Record)}
}

func (f *fakeSessions) GetSession(user string) (*session.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[user]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return rec, nil
}

func (f *fakeSessions) GetCookie(user string) (string, error) {
	rec, err := f.GetSession(user)
	if err != nil {
		return "", err
	}
	return rec.Cookie, nil
}

func (f *fakeSessions) ListAll() []session.View { return nil }

func (f *fakeSessions) ActiveSessions() []session.View { return nil }

func (f *fakeSessions) StoreSimple(user, cookie string) *session.Record {
	rec := session.NewRecord(user, cookie, session.MethodSimpleStorage)
	f.mu.Lock()
	f.records[user] = rec
	f.mu.Unlock()
	return rec
}

func (f *fakeSessions) Validate(user, cookie string) bool {
	stored, err := f.GetCookie(user)
	return err == nil && stored == cookie
}

func (f *fakeSessions) Delete(user string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[user]
	delete(f.records, user)
	return ok
}

type fakeRecordings struct {
	mu     sync.Mutex
	last   service.RecordingRequest
	result *service.RecordingResult
	body   string
	err    error
}

func (f *fakeRecordings) Fetch(_ context.Context, req service.RecordingRequest) *service.RecordingResult {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.result
}

func (f *fakeRecordings) Stream(_ context.Context, req service.RecordingRequest) (*pbx.Stream, error) {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &pbx.Stream{
		HTTPStatus:    200,
		ContentType:   "audio/wav",
		ContentLength: int64(len(f.body)),
		Body:          io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

type fakeCDR struct {
	mu   sync.Mutex
	last service.CDRQuery
}

func (f *fakeCDR) Query(_ context.Context, q service.CDRQuery) *service.CDRResult {
	f.mu.Lock()
	f.last = q
	f.mu.Unlock()
	return &service.CDRResult{
		Success:   true,
		Data:      json.RawMessage(`{"cdr_root":[]}`),
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

type fakeCalls struct {
	mu    sync.Mutex
	last  service.CallRequest
	reply *pbx.Reply
	err   error
}

func (f *fakeCalls) MakeCall(_ context.Context, req service.CallRequest) (*pbx.Reply, error) {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.reply, f.err
}

// denyAll refuses every attempt.
type denyAll struct{}

func (denyAll) Allow(string) ratelimit.Result {
	return ratelimit.Result{Allowed: false, RetryAfter: 1500 * time.Millisecond}
}

type fakes struct {
	auth       *fakeAuth
	sessions   *fakeSessions
	recordings *fakeRecordings
	cdr        *fakeCDR
	calls      *fakeCalls
}

func newFakes() *fakes {
	return &fakes{
		auth:       &fakeAuth{},
		sessions:   newFakeSessions(),
		recordings: &fakeRecordings{},
		cdr:        &fakeCDR{},
		calls:      &fakeCalls{},
	}
}

func (f *fakes) services() Services {
	return Services{
		Auth:       f.auth,
		Sessions:   f.sessions,
		Recordings: f.recordings,
		CDR:        f.cdr,
		Calls:      f.calls,
	}
}

func replyOf(raw string) *pbx.Reply {
	return pbx.ParseReply(200, nil, []byte(raw))
}

func intPtr(v int) *int { return &v }
