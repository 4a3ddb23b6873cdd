package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
)

// Structured failure messages returned by Query.
const (
	errCDRStatus  = "CDR API responded with error"
	errCDRNetwork = "Network error - unable to reach CDR API"
)

// CDRQuery filters a call detail record query. Empty filters are omitted.
// Extra fields are passed through to the PBX as-is.
type CDRQuery struct {
	User      string
	Cookie    string
	Action    string
	Caller    string
	Callee    string
	Format    string
	StartTime string
	EndTime   string
	Extra     map[string]any
}

// CDRResult is the structured outcome of Query.
type CDRResult struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Status    int             `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// CDRService queries call detail records.
type CDRService struct {
	client   outbound.PBXClient
	sessions session.Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewCDRService creates a new CDRService.
func NewCDRService(client outbound.PBXClient, sessions session.Store, logger *slog.Logger) *CDRService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CDRService{client: client, sessions: sessions, logger: logger, now: time.Now}
}

// Query runs q against the CDR API. It never returns an error; failures are
// reported in the result with the HTTP status when the PBX answered.
func (s *CDRService) Query(ctx context.Context, q CDRQuery) *CDRResult {
	cookie, err := resolveCookie(s.sessions, q.User, q.Cookie)
	if err != nil {
		return &CDRResult{Error: errNoActiveSession, Message: err.Error(), Timestamp: s.now().UTC()}
	}

	action := q.Action
	if action == "" {
		action = pbx.ActionCDR
	}
	req := pbx.NewRequest(action)
	for k, v := range q.Extra {
		req.With(k, v)
	}
	req.With("cookie", cookie).
		WithOptional("caller", q.Caller).
		WithOptional("callee", q.Callee).
		WithOptional("format", q.Format).
		WithOptional("startTime", q.StartTime).
		WithOptional("endTime", q.EndTime)

	reply, err := s.client.Call(ctx, outbound.EndpointCDR, req)
	if err != nil {
		var remote *pbx.RemoteError
		if errors.As(err, &remote) && remote.HTTPStatus != 0 {
			s.logger.Warn("cdr query rejected", "status", remote.HTTPStatus)
			return &CDRResult{
				Error:     errCDRStatus,
				Status:    remote.HTTPStatus,
				Data:      (&pbx.Reply{Body: remote.Body}).JSON(),
				Timestamp: s.now().UTC(),
			}
		}
		s.logger.Warn("cdr query failed", "error", err)
		return &CDRResult{Error: errCDRNetwork, Message: err.Error(), Timestamp: s.now().UTC()}
	}

	return &CDRResult{
		Success:   true,
		Data:      reply.JSON(),
		Status:    reply.HTTPStatus,
		Timestamp: s.now().UTC(),
	}
}
