package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
)

// DefaultAPIVersion is sent with challenge and login requests.
const DefaultAPIVersion = "1.0"

// Structured failure messages returned by Challenge.
const (
	errChallengeFailed = "Challenge failed"
	errAutoLoginFailed = "Auto login failed"
)

// AuthConfig configures AuthService.
type AuthConfig struct {
	// APIVersion is sent as "version" with challenge and login requests.
	APIVersion string
	// SharedSecret is appended to the challenge to derive the token used by
	// the challenge auto-login.
	SharedSecret string
}

// LoginResult is returned by a login that the PBX accepted.
type LoginResult struct {
	User   string `json:"user"`
	Cookie string `json:"cookie"`
	// SessionStored is false when the PBX accepted the login without
	// issuing a cookie. No session is stored in that case.
	SessionStored bool            `json:"sessionStored"`
	Session       *session.Record `json:"-"`
}

// AutoLoginOutcome reports the login half of Challenge.
type AutoLoginOutcome struct {
	Success bool `json:"success"`
	// Status is the PBX status, -1 when the login never got an answer.
	Status   *int            `json:"status"`
	Error    string          `json:"error,omitempty"`
	Message  string          `json:"message,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// ChallengeResult is the structured outcome of Challenge. Success describes
// the challenge step only; the auto-login outcome is nested in Login.
type ChallengeResult struct {
	Success       bool              `json:"success"`
	User          string            `json:"user"`
	Error         string            `json:"error,omitempty"`
	Message       string            `json:"message,omitempty"`
	Challenge     json.RawMessage   `json:"challenge,omitempty"`
	Token         string            `json:"token,omitempty"`
	Login         *AutoLoginOutcome `json:"login,omitempty"`
	SessionCookie string            `json:"sessionCookie,omitempty"`
	SessionStored bool              `json:"sessionStored"`
	CookieLength  int               `json:"cookieLength"`
	Timestamp     time.Time         `json:"timestamp"`
}

// AuthService runs the PBX login sequences and records resulting sessions.
// Every sequence is strictly ordered: the challenge completes before the
// login is sent, and nothing is stored unless the login succeeded.
type AuthService struct {
	client   outbound.PBXClient
	sessions session.Store
	cfg      AuthConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(client outbound.PBXClient, sessions session.Store, cfg AuthConfig, logger *slog.Logger) *AuthService {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		client:   client,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Login performs the password login: challenge, then a login carrying
// md5(user:challenge:password). The cookie is taken from the Set-Cookie
// header of the login answer.
//
// Returns errors matching pbx.ErrChallengeUnavailable, pbx.ErrLoginRejected
// or pbx.ErrRemoteUnavailable.
func (s *AuthService) Login(ctx context.Context, user, password string) (*LoginResult, error) {
	challenge, _, err := s.requestChallenge(ctx, user)
	if err != nil {
		return nil, err
	}

	req := pbx.NewRequest(pbx.ActionLogin).
		With("user", user).
		With("password", pbx.PasswordDigest(user, challenge, password)).
		With("version", s.cfg.APIVersion)
	reply, err := s.client.Call(ctx, outbound.EndpointControl, req)
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", user, err)
	}
	if !reply.OK() {
		return nil, fmt.Errorf("login %s: %w", user, &pbx.LoginRejectedError{Status: reply.Status})
	}

	return s.storeSession(user, reply.HeaderCookie(), session.MethodPassword), nil
}

// TokenLogin logs in with a caller-supplied token and returns the raw PBX
// reply. The cookie is taken from the JSON body.
//
// Returns errors matching pbx.ErrLoginRejected or pbx.ErrRemoteUnavailable.
func (s *AuthService) TokenLogin(ctx context.Context, user, token string) (*pbx.Reply, error) {
	req := pbx.NewRequest(pbx.ActionLogin).
		With("user", user).
		With("token", token).
		With("version", s.cfg.APIVersion)
	reply, err := s.client.Call(ctx, outbound.EndpointControl, req)
	if err != nil {
		return nil, fmt.Errorf("token login %s: %w", user, err)
	}
	if !reply.OK() {
		return nil, fmt.Errorf("token login %s: %w", user, &pbx.LoginRejectedError{Status: reply.Status})
	}

	s.storeSession(user, reply.BodyCookie(), session.MethodToken)
	return reply, nil
}

// Challenge requests a challenge, derives the token from the shared secret
// and logs in with it. It never returns an error: a failed challenge yields
// Success=false, and a failed auto-login after a good challenge is reported
// in Login while Success stays true.
func (s *AuthService) Challenge(ctx context.Context, user string) *ChallengeResult {
	challenge, challengeReply, err := s.requestChallenge(ctx, user)
	if err != nil {
		s.logger.Warn("challenge failed", "user", user, "error", err)
		return &ChallengeResult{
			Success:   false,
			User:      user,
			Error:     errChallengeFailed,
			Message:   err.Error(),
			Timestamp: s.now().UTC(),
		}
	}

	token := pbx.TokenDigest(challenge, s.cfg.SharedSecret)
	result := &ChallengeResult{
		Success:   true,
		User:      user,
		Challenge: challengeReply.JSON(),
		Token:     token,
		Timestamp: s.now().UTC(),
	}

	req := pbx.NewRequest(pbx.ActionLogin).
		With("user", user).
		With("token", token)
	reply, err := s.client.Call(ctx, outbound.EndpointControl, req)
	if err != nil {
		s.logger.Warn("auto login failed", "user", user, "error", err)
		result.Login = &AutoLoginOutcome{
			Success: false,
			Status:  intPtr(-1),
			Error:   errAutoLoginFailed,
			Message: err.Error(),
		}
		return result
	}

	result.Login = &AutoLoginOutcome{
		Success:  reply.OK(),
		Status:   reply.Status,
		Response: reply.JSON(),
	}
	if !reply.OK() {
		rejected := &pbx.LoginRejectedError{Status: reply.Status}
		s.logger.Warn("auto login rejected", "user", user, "error", rejected)
		result.Login.Error = errAutoLoginFailed
		result.Login.Message = rejected.Error()
		return result
	}

	login := s.storeSession(user, reply.BodyCookie(), session.MethodChallengeAutoLogin)
	result.SessionCookie = login.Cookie
	result.SessionStored = login.SessionStored
	result.CookieLength = len(login.Cookie)
	return result
}

// Logout ends the PBX session identified by cookie, or by the stored session
// of user when cookie is empty. The stored session of user is removed once
// the PBX acknowledges.
func (s *AuthService) Logout(ctx context.Context, user, cookie string) (*pbx.Reply, error) {
	if cookie == "" {
		c, err := s.sessions.GetCookie(user)
		if err != nil {
			return nil, &pbx.NoActiveSessionError{User: user}
		}
		cookie = c
	}

	reply, err := s.client.Call(ctx, outbound.EndpointControl,
		pbx.NewRequest(pbx.ActionLogout).WithCookieHeader(cookie))
	if err != nil {
		return nil, fmt.Errorf("logout %s: %w", user, err)
	}
	if reply.OK() && user != "" {
		s.sessions.Delete(user)
		s.logger.Info("session closed", "user", user)
	}
	return reply, nil
}

// requestChallenge performs the first step shared by both login paths.
func (s *AuthService) requestChallenge(ctx context.Context, user string) (string, *pbx.Reply, error) {
	req := pbx.NewRequest(pbx.ActionChallenge).
		With("user", user).
		With("version", s.cfg.APIVersion)
	reply, err := s.client.Call(ctx, outbound.EndpointControl, req)
	if err != nil {
		return "", nil, fmt.Errorf("challenge %s: %w", user, err)
	}
	challenge := reply.Challenge()
	if challenge == "" {
		return "", reply, fmt.Errorf("challenge %s: %w", user, pbx.ErrChallengeUnavailable)
	}
	return challenge, reply, nil
}

// storeSession records a session for an accepted login. Without a cookie
// the login still counts as successful but nothing is stored.
func (s *AuthService) storeSession(user, cookie string, method session.LoginMethod) *LoginResult {
	if cookie == "" {
		s.logger.Warn("login accepted without session cookie, session not stored",
			"user", user, "method", string(method))
		return &LoginResult{User: user}
	}

	rec := session.NewRecord(user, cookie, method)
	rec.LoginStatus = pbx.StatusOK
	stored := s.sessions.Store(user, rec)

	s.logger.Info("session stored",
		"user", user,
		"method", string(method),
		"session_id", stored.SessionID,
		"cookie_length", len(cookie),
		"expires_at", stored.ExpiresAt)

	return &LoginResult{
		User:          user,
		Cookie:        cookie,
		SessionStored: true,
		Session:       stored,
	}
}

func intPtr(v int) *int { return &v }
