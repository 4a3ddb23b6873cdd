package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/pbxgate/pbxgate/internal/domain/cache"
	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
)

// DefaultRecordingTTL is how long a fetched recording stays cached.
const DefaultRecordingTTL = 30 * time.Minute

// Structured failure messages returned by Fetch.
const (
	errNoActiveSession     = "No active session"
	errRecordingStatus     = "Recording API returned status"
	errRecordingNetwork    = "Network error - unable to reach recording API"
	errRecordingBadRequest = "Filename is required"
)

// RecordingRequest identifies a recording and the session used to fetch it.
// Cookie wins over User when both are set.
type RecordingRequest struct {
	User     string
	Cookie   string
	Filename string
	// Action defaults to pbx.ActionRecording.
	Action string
}

// RecordingResult is the structured outcome of Fetch. Data marshals to
// base64 in JSON.
type RecordingResult struct {
	Success       bool      `json:"success"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"contentType,omitempty"`
	ContentLength int64     `json:"contentLength,omitempty"`
	Data          []byte    `json:"data,omitempty"`
	Checksum      string    `json:"checksum,omitempty"`
	Cached        bool      `json:"cached"`
	Status        int       `json:"status,omitempty"`
	Error         string    `json:"error,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// RecordingService fetches recordings through the artifact cache.
type RecordingService struct {
	client    outbound.PBXClient
	sessions  session.Store
	artifacts outbound.ArtifactCache
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
	inflight  singleflight.Group
}

// NewRecordingService creates a new RecordingService. A non-positive ttl
// uses DefaultRecordingTTL.
func NewRecordingService(client outbound.PBXClient, sessions session.Store, artifacts outbound.ArtifactCache, ttl time.Duration, logger *slog.Logger) *RecordingService {
	if ttl <= 0 {
		ttl = DefaultRecordingTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordingService{
		client:    client,
		sessions:  sessions,
		artifacts: artifacts,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Fetch returns the recording, from the cache when possible. It never
// returns an error: missing sessions, non-2xx answers and transport
// failures are reported in the result. Concurrent misses for the same
// recording share one remote call.
func (s *RecordingService) Fetch(ctx context.Context, req RecordingRequest) *RecordingResult {
	action := req.Action
	if action == "" {
		action = pbx.ActionRecording
	}
	if req.Filename == "" {
		return s.failure(req.Filename, errRecordingBadRequest, "filename must not be empty", 0)
	}

	cookie, err := resolveCookie(s.sessions, req.User, req.Cookie)
	if err != nil {
		return s.failure(req.Filename, errNoActiveSession, err.Error(), 0)
	}

	key := cache.RecordingKey(req.Filename, action)
	if artifact, ok := s.artifacts.Get(key); ok {
		s.logger.Debug("recording served from cache", "filename", req.Filename, "size", len(artifact.Data))
		return s.success(req.Filename, artifact, true)
	}

	// The shared call outlives any one caller; the client's data timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (any, error) {
		payload, err := s.client.Fetch(flightCtx, outbound.EndpointRecording,
			pbx.NewRequest(action).
				With("cookie", cookie).
				With("filename", req.Filename))
		if err != nil {
			return nil, err
		}
		artifact := cache.Artifact{
			ContentType: payload.ContentType,
			Data:        payload.Data,
			StoredAt:    s.now().UTC(),
		}
		if artifact.ContentType == "" {
			artifact.ContentType = pbx.DefaultContentType
		}
		s.artifacts.Set(key, artifact, s.ttl)
		s.logger.Info("recording cached", "filename", req.Filename, "size", len(artifact.Data), "ttl", s.ttl)
		return artifact, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return s.failure(req.Filename, errRecordingNetwork, ctx.Err().Error(), 0)
	}
	if err := res.Err; err != nil {
		var remote *pbx.RemoteError
		if errors.As(err, &remote) && remote.HTTPStatus != 0 {
			s.logger.Warn("recording fetch rejected", "filename", req.Filename, "status", remote.HTTPStatus)
			return s.failure(req.Filename, errRecordingStatus,
				"Recording API error: "+strconv.Itoa(remote.HTTPStatus), remote.HTTPStatus)
		}
		s.logger.Warn("recording fetch failed", "filename", req.Filename, "error", err)
		return s.failure(req.Filename, errRecordingNetwork, err.Error(), 0)
	}

	return s.success(req.Filename, res.Val.(cache.Artifact), false)
}

// Stream opens the recording for pass-through playback without caching.
// Returns errors matching pbx.ErrNoActiveSession or pbx.ErrRemoteUnavailable.
func (s *RecordingService) Stream(ctx context.Context, req RecordingRequest) (*pbx.Stream, error) {
	action := req.Action
	if action == "" {
		action = pbx.ActionRecording
	}
	cookie, err := resolveCookie(s.sessions, req.User, req.Cookie)
	if err != nil {
		return nil, err
	}

	stream, err := s.client.Open(ctx, outbound.EndpointRecording,
		pbx.NewRequest(action).
			With("cookie", cookie).
			With("filename", req.Filename))
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", req.Filename, err)
	}
	if stream.ContentType == "" {
		stream.ContentType = pbx.DefaultContentType
	}
	return stream, nil
}

func (s *RecordingService) success(filename string, a cache.Artifact, cached bool) *RecordingResult {
	return &RecordingResult{
		Success:       true,
		Filename:      filename,
		ContentType:   a.ContentType,
		ContentLength: int64(len(a.Data)),
		Data:          a.Data,
		Checksum:      Checksum(a.Data),
		Cached:        cached,
		Timestamp:     s.now().UTC(),
	}
}

func (s *RecordingService) failure(filename, code, message string, status int) *RecordingResult {
	return &RecordingResult{
		Success:   false,
		Filename:  filename,
		Status:    status,
		Error:     code,
		Message:   message,
		Timestamp: s.now().UTC(),
	}
}

// Checksum returns the xxhash64 of data as 16 hex digits.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// resolveCookie picks the explicit cookie or the cookie of user's session.
func resolveCookie(sessions session.Store, user, cookie string) (string, error) {
	if cookie != "" {
		return cookie, nil
	}
	if user != "" {
		if c, err := sessions.GetCookie(user); err == nil {
			return c, nil
		}
	}
	return "", &pbx.NoActiveSessionError{User: user}
}
