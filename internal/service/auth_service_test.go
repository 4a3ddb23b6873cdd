package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/session"
)

var errDial = &pbx.RemoteError{Op: "challenge", Err: errors.New("dial tcp 10.0.0.1:8089: connection refused")}

func newAuth(client *fakePBX, clock *fakeClock) (*AuthService, *SessionService) {
	sessions, _ := newStores(clock)
	svc := NewAuthService(client, sessions, AuthConfig{SharedSecret: "cdrapi123"}, nil)
	svc.now = clock.Now
	return svc, NewSessionService(sessions, nil)
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	client := newFakePBX().
		on("challenge", replyWith(`{"status":0,"response":{"challenge":"abc123"}}`)).
		on("login", replyWith(`{"status":0,"response":{}}`, "session-identify=sid-alice; Path=/"))
	auth, sessions := newAuth(client, newFakeClock())

	if _, err := sessions.GetCookie("alice"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("GetCookie() before login error = %v, want ErrSessionNotFound", err)
	}

	res, err := auth.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Cookie != "session-identify=sid-alice; Path=/" || !res.SessionStored {
		t.Errorf("Login() = %+v", res)
	}

	login := client.last("login")
	if got := login.Fields["password"]; got != "5abbcd4d1f601084cbd57f06a7bdbcc3" {
		t.Errorf("login password = %v, want md5(alice:abc123:secret)", got)
	}
	if got := login.Fields["version"]; got != "1.0" {
		t.Errorf("login version = %v, want 1.0", got)
	}
	if got := client.last("challenge").Fields["user"]; got != "alice" {
		t.Errorf("challenge user = %v", got)
	}
	if !reflect.DeepEqual(client.actions(), []string{"challenge", "login"}) {
		t.Errorf("actions = %v, want challenge then login", client.actions())
	}

	cookie, err := sessions.GetCookie("alice")
	if err != nil || cookie != res.Cookie {
		t.Errorf("GetCookie() = %q, %v, want captured cookie", cookie, err)
	}
	rec, _ := sessions.GetSession("alice")
	if rec.LoginMethod != session.MethodPassword {
		t.Errorf("LoginMethod = %s, want password", rec.LoginMethod)
	}
}

func TestAuthService_LoginRejected(t *testing.T) {
	t.Parallel()

	client := newFakePBX().
		on("challenge", replyWith(`{"status":0,"response":{"challenge":"abc123"}}`)).
		on("login", replyWith(`{"status":-37}`, "session-identify=should-not-be-used"))
	auth, sessions := newAuth(client, newFakeClock())

	_, err := auth.Login(context.Background(), "alice", "secret")
	if !errors.Is(err, pbx.ErrLoginRejected) {
		t.Fatalf("Login() error = %v, want ErrLoginRejected", err)
	}
	if status, ok := pbx.StatusOf(err); !ok || status != -37 {
		t.Errorf("StatusOf() = %d, %v, want -37", status, ok)
	}
	if got := client.last("login").Fields["password"]; got != "5abbcd4d1f601084cbd57f06a7bdbcc3" {
		t.Errorf("login password = %v", got)
	}
	if _, err := sessions.GetSession("alice"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want no session after rejection", err)
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		client    *fakePBX
		wantErr   error
		wantCalls []string
	}{
		{
			name:      "no challenge",
			client:    newFakePBX().on("challenge", replyWith(`{"status":0,"response":{}}`)),
			wantErr:   pbx.ErrChallengeUnavailable,
			wantCalls: []string{"challenge"},
		},
		{
			name:      "malformed challenge reply",
			client:    newFakePBX().on("challenge", replyWith(`<html>`)),
			wantErr:   pbx.ErrChallengeUnavailable,
			wantCalls: []string{"challenge"},
		},
		{
			name:      "challenge unreachable",
			client:    newFakePBX().on("challenge", failWith(errDial)),
			wantErr:   pbx.ErrRemoteUnavailable,
			wantCalls: []string{"challenge"},
		},
		{
			name: "login timeout",
			client: newFakePBX().
				on("challenge", replyWith(`{"status":0,"response":{"challenge":"c"}}`)).
				on("login", failWith(&pbx.RemoteError{Op: "login", Err: context.DeadlineExceeded})),
			wantErr:   pbx.ErrRemoteUnavailable,
			wantCalls: []string{"challenge", "login"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			auth, sessions := newAuth(tt.client, newFakeClock())

			_, err := auth.Login(context.Background(), "alice", "secret")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(tt.client.actions(), tt.wantCalls) {
				t.Errorf("actions = %v, want %v", tt.client.actions(), tt.wantCalls)
			}
			if len(sessions.ListAll()) != 0 {
				t.Error("failed login must not store a session")
			}
		})
	}
}

func TestAuthService_LoginWithoutCookie(t *testing.T) {
	t.Parallel()

	client := newFakePBX().
		on("challenge", replyWith(`{"status":0,"response":{"challenge":"abc123"}}`)).
		on("login", replyWith(`{"status":0}`))
	auth, sessions := newAuth(client, newFakeClock())

	res, err := auth.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v, want soft failure", err)
	}
	if res.SessionStored || res.Cookie != "" {
		t.Errorf("Login() = %+v, want nothing stored", res)
	}
	if len(sessions.ListAll()) != 0 {
		t.Error("session storage must be untouched")
	}
}

func TestAuthService_LoginOverwritesSession(t *testing.T) {
	t.Parallel()

	cookies := []string{"sid=first", "sid=second"}
	n := 0
	client := newFakePBX().
		on("challenge", replyWith(`{"status":0,"response":{"challenge":"abc123"}}`)).
		on("login", func(*pbx.Request) (*pbx.Reply, error) {
			c := cookies[n]
			n++
			return jsonReply(`{"status":0}`, c), nil
		})
	auth, sessions := newAuth(client, newFakeClock())

	for range cookies {
		if _, err := auth.Login(context.Background(), "alice", "secret"); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}
	if c, _ := sessions.GetCookie("alice"); c != "sid=second" {
		t.Errorf("GetCookie() = %q, want sid=second", c)
	}
	if len(sessions.ListAll()) != 1 {
		t.Errorf("ListAll() len = %d, want 1", len(sessions.ListAll()))
	}
}

func TestAuthService_Challenge(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakePBX().
		on("challenge", replyWith(`{"status":0,"response":{"challenge":"abc123"}}`)).
		on("login", replyWith(`{"status":0,"response":{"cookie":"sid-token-1"}}`))
	auth, sessions := newAuth(client, clock)

	res := auth.Challenge(context.Background(), "carol")
	if !res.Success || res.Error != "" {
		t.Fatalf("Challenge() = %+v, want success", res)
	}
	if res.Token != "d5cdc5e7fe52547c2961a2153e824393" {
		t.Errorf("Token = %q, want md5(abc123cdrapi123)", res.Token)
	}
	if !res.SessionStored || res.SessionCookie != "sid-token-1" || res.CookieLength != len("sid-token-1") {
		t.Errorf("Challenge() session = %+v", res)
	}
	if res.Login == nil || !res.Login.Success || res.Login.Status == nil || *res.Login.Status != 0 {
		t.Errorf("Login outcome = %+v", res.Login)
	}
	if !res.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v, want %v", res.Timestamp, clock.Now())
	}

	login := client.last("login")
	if login.Fields["token"] != res.Token {
		t.Errorf("login token = %v, want %s", login.Fields["token"], res.Token)
	}
	if _, ok := login.Fields["version"]; ok {
		t.Error("auto login does not send a version")
	}

	rec, err := sessions.GetSession("carol")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if rec.LoginMethod != session.MethodChallengeAutoLogin || rec.Cookie != "sid-token-1" {
		t.Errorf("session = %+v", rec)
	}

	var challenge map[string]any
	if err := json.Unmarshal(res.Challenge, &challenge); err != nil {
		t.Fatalf("Challenge payload is not JSON: %v", err)
	}
}

func TestAuthService_ChallengeWithoutChallengeField(t *testing.T) {
	t.Parallel()

	client := newFakePBX().on("challenge", replyWith(`{"status":0,"response":{}}`))
	auth, sessions := newAuth(client, newFakeClock())

	res := auth.Challenge(context.Background(), "bob")
	if res.Success || res.Error != "Challenge failed" {
		t.Errorf("Challenge() = %+v, want {success:false, error:\"Challenge failed\"}", res)
	}
	if res.Message == "" || res.User != "bob" {
		t.Errorf("Challenge() = %+v, want message and user", res)
	}
	if _, err := sessions.GetSession("bob"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
	if !reflect.DeepEqual(client.actions(), []string{"challenge"}) {
		t.Errorf("actions = %v, want only the challenge", client.actions())
	}
}

func TestAuthService_ChallengeUnreachable(t *testing.T) {
	t.Parallel()

	client := newFakePBX().on("challenge", failWith(errDial))
	auth, _ := newAuth(client, newFakeClock())

	res := auth.Challenge(context.Background(), "bob")
	if res.Success || res.Error != "Challenge failed" {
		t.Fatalf("Challenge() = %+v", res)
	}
	if want := "connection refused"; !strings.Contains(res.Message, want) {
		t.Errorf("Message = %q, want transport detail %q", res.Message, want)
	}
}

func TestAuthService_ChallengeAutoLoginFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		login      func(*pbx.Request) (*pbx.Reply, error)
		wantStatus int
	}{
		{
			name:       "rejected",
			login:      replyWith(`{"status":-6}`),
			wantStatus: -6,
		},
		{
			name:       "unreachable",
			login:      failWith(&pbx.RemoteError{Op: "login", Err: context.DeadlineExceeded}),
			wantStatus: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newFakePBX().
				on("challenge", replyWith(`{"status":0,"response":{"challenge":"c1"}}`)).
				on("login", tt.login)
			auth, sessions := newAuth(client, newFakeClock())

			res := auth.Challenge(context.Background(), "dave")
			if !res.Success {
				t.Fatalf("Challenge() Success = false, the challenge itself succeeded")
			}
			if res.Login == nil || res.Login.Success || res.Login.Error != "Auto login failed" {
				t.Fatalf("Login outcome = %+v", res.Login)
			}
			if res.Login.Status == nil || *res.Login.Status != tt.wantStatus {
				t.Errorf("Login.Status = %v, want %d", res.Login.Status, tt.wantStatus)
			}
			if res.SessionStored {
				t.Error("SessionStored = true, want false")
			}
			if len(sessions.ListAll()) != 0 {
				t.Error("failed auto login must not store a session")
			}
		})
	}
}

func TestAuthService_ChallengeLoginWithoutCookie(t *testing.T) {
	t.Parallel()

	client := newFakePBX().
		on("challenge", replyWith(`{"status":0,"response":{"challenge":"c1"}}`)).
		on("login", replyWith(`{"status":0,"response":{}}`))
	auth, sessions := newAuth(client, newFakeClock())

	res := auth.Challenge(context.Background(), "erin")
	if !res.Success || res.Login == nil || !res.Login.Success {
		t.Fatalf("Challenge() = %+v, want success", res)
	}
	if res.SessionStored || res.CookieLength != 0 {
		t.Errorf("Challenge() = %+v, want no session stored", res)
	}
	if len(sessions.ListAll()) != 0 {
		t.Error("session storage must be untouched")
	}
}

func TestAuthService_TokenLogin(t *testing.T) {
	t.Parallel()

	client := newFakePBX().
		on("login", replyWith(`{"status":0,"response":{"cookie":"sid-tok","needchange":0}}`))
	auth, sessions := newAuth(client, newFakeClock())

	reply, err := auth.TokenLogin(context.Background(), "frank", "tok-1")
	if err != nil {
		t.Fatalf("TokenLogin() error = %v", err)
	}
	if string(reply.JSON()) != `{"status":0,"response":{"cookie":"sid-tok","needchange":0}}` {
		t.Errorf("TokenLogin() payload = %s, want raw reply", reply.JSON())
	}
	login := client.last("login")
	if login.Fields["token"] != "tok-1" || login.Fields["version"] != "1.0" {
		t.Errorf("login fields = %v", login.Fields)
	}

	rec, err := sessions.GetSession("frank")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if rec.LoginMethod != session.MethodToken || rec.Cookie != "sid-tok" {
		t.Errorf("session = %+v", rec)
	}
}

func TestAuthService_TokenLoginRejected(t *testing.T) {
	t.Parallel()

	client := newFakePBX().on("login", replyWith(`{"status":-37}`))
	auth, sessions := newAuth(client, newFakeClock())

	_, err := auth.TokenLogin(context.Background(), "frank", "bad")
	if !errors.Is(err, pbx.ErrLoginRejected) {
		t.Fatalf("TokenLogin() error = %v, want ErrLoginRejected", err)
	}
	if len(sessions.ListAll()) != 0 {
		t.Error("rejected token login must not store a session")
	}
}

func TestAuthService_Logout(t *testing.T) {
	t.Parallel()

	client := newFakePBX().
		on("login", replyWith(`{"status":0,"response":{"cookie":"sid-tok"}}`)).
		on("logout", replyWith(`{"status":0}`))
	auth, sessions := newAuth(client, newFakeClock())

	if _, err := auth.TokenLogin(context.Background(), "gina", "t"); err != nil {
		t.Fatalf("TokenLogin() error = %v", err)
	}
	if _, err := auth.Logout(context.Background(), "gina", ""); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if got := client.last("logout").Cookie; got != "sid-tok" {
		t.Errorf("logout Cookie header = %q, want sid-tok", got)
	}
	if _, err := sessions.GetSession("gina"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want session removed", err)
	}

	if _, err := auth.Logout(context.Background(), "gina", ""); !errors.Is(err, pbx.ErrNoActiveSession) {
		t.Errorf("Logout() without session error = %v, want ErrNoActiveSession", err)
	}
}
