package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
)

// CallRequest originates a call from Extension to Number.
type CallRequest struct {
	User      string
	Cookie    string
	Extension string
	Number    string
}

// CallService issues call-control actions.
type CallService struct {
	client   outbound.PBXClient
	sessions session.Store
	logger   *slog.Logger
}

// NewCallService creates a new CallService.
func NewCallService(client outbound.PBXClient, sessions session.Store, logger *slog.Logger) *CallService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallService{client: client, sessions: sessions, logger: logger}
}

// MakeCall asks the PBX to originate a call and returns its raw reply. The
// session cookie travels in a Cookie header.
// Returns errors matching pbx.ErrNoActiveSession or pbx.ErrRemoteUnavailable.
func (s *CallService) MakeCall(ctx context.Context, req CallRequest) (*pbx.Reply, error) {
	cookie, err := resolveCookie(s.sessions, req.User, req.Cookie)
	if err != nil {
		return nil, err
	}

	reply, err := s.client.Call(ctx, outbound.EndpointControl,
		pbx.NewRequest(pbx.ActionCall).
			With("ext", req.Extension).
			With("number", req.Number).
			WithCookieHeader(cookie))
	if err != nil {
		return nil, fmt.Errorf("call %s -> %s: %w", req.Extension, req.Number, err)
	}
	s.logger.Info("call requested", "ext", req.Extension, "number", req.Number, "ok", reply.OK())
	return reply, nil
}
