// Package pbxhttp implements the PBX outbound port over HTTP(S).
package pbxhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
	"github.com/pbxgate/pbxgate/internal/telemetry"
)

const (
	// DefaultAuthTimeout bounds control calls (challenge, login, logout, call).
	DefaultAuthTimeout = 10 * time.Second

	// DefaultDataTimeout bounds CDR and recording calls.
	DefaultDataTimeout = 30 * time.Second

	// maxReplyBodySize bounds JSON replies.
	maxReplyBodySize = 10 * 1024 * 1024

	// DefaultMaxPayloadSize bounds binary payloads read in full.
	DefaultMaxPayloadSize = 64 * 1024 * 1024

	// errorBodySnippet is how much of a failed answer is kept for diagnostics.
	errorBodySnippet = 4 * 1024
)

// BreakerSettings configures the optional circuit breaker.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// Client talks to the PBX control, CDR and recording APIs. It implements
// outbound.PBXClient.
type Client struct {
	urls           map[outbound.Endpoint]string
	httpClient     *http.Client
	authTimeout    time.Duration
	dataTimeout    time.Duration
	maxPayloadSize int64
	logger         *slog.Logger
	breaker        *gobreaker.CircuitBreaker[any]

	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// ClientOption is a functional option for configuring Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeouts sets the control and data call timeouts. Zero keeps the default.
func WithTimeouts(auth, data time.Duration) ClientOption {
	return func(c *Client) {
		if auth > 0 {
			c.authTimeout = auth
		}
		if data > 0 {
			c.dataTimeout = data
		}
	}
}

// WithEndpointURL overrides the URL for one endpoint. Endpoints without an
// override use the base URL.
func WithEndpointURL(endpoint outbound.Endpoint, url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.urls[endpoint] = url
		}
	}
}

// WithInsecureSkipVerify disables TLS certificate verification, for
// appliances with self-signed certificates.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(c *Client) {
		if t, ok := c.httpClient.Transport.(*http.Transport); ok && t.TLSClientConfig != nil {
			t.TLSClientConfig.InsecureSkipVerify = skip //nolint:gosec // operator opt-in
		}
	}
}

// WithMaxPayloadSize bounds binary payloads read by Fetch.
func WithMaxPayloadSize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxPayloadSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTelemetry records a span and metrics for every call.
func WithTelemetry(p *telemetry.Provider) ClientOption {
	return func(c *Client) {
		c.tracer = p.Tracer()
		meter := p.Meter()
		c.requests, _ = meter.Int64Counter("pbx.requests",
			metric.WithDescription("PBX API calls by action and outcome"))
		c.duration, _ = meter.Float64Histogram("pbx.request.duration",
			metric.WithDescription("PBX API call latency"),
			metric.WithUnit("s"))
	}
}

// WithCircuitBreaker fails calls fast while the PBX keeps failing. Answers
// with a 4xx status do not count as failures.
func WithCircuitBreaker(s BreakerSettings) ClientOption {
	return func(c *Client) {
		minRequests := s.MinRequests
		ratio := s.FailureRatio
		c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "pbx-api",
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < minRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				var remote *pbx.RemoteError
				if errors.As(err, &remote) && remote.HTTPStatus >= 400 && remote.HTTPStatus < 500 {
					return true
				}
				return err == nil
			},
		})
	}
}

// NewClient creates a client for the PBX API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		urls: map[outbound.Endpoint]string{
			outbound.EndpointControl:   baseURL,
			outbound.EndpointCDR:       baseURL,
			outbound.EndpointRecording: baseURL,
		},
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		authTimeout:    DefaultAuthTimeout,
		dataTimeout:    DefaultDataTimeout,
		maxPayloadSize: DefaultMaxPayloadSize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		WithTelemetry(telemetry.Noop())(c)
	}
	return c
}

// Call posts req and decodes the JSON reply. A reply that is not JSON is
// returned without a status rather than as an error.
func (c *Client) Call(ctx context.Context, endpoint outbound.Endpoint, req *pbx.Request) (*pbx.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(endpoint))
	defer cancel()

	var reply *pbx.Reply
	err := c.observe(ctx, endpoint, req.Action, func(ctx context.Context) (int, error) {
		resp, err := c.post(ctx, endpoint, req)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBodySize))
		if err != nil {
			return resp.StatusCode, &pbx.RemoteError{Op: req.Action, Err: fmt.Errorf("read reply: %w", err)}
		}
		if err := checkStatus(req.Action, resp.StatusCode, body); err != nil {
			return resp.StatusCode, err
		}
		reply = pbx.ParseReply(resp.StatusCode, resp.Header.Values("Set-Cookie"), body)
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// Fetch posts req and reads a binary answer of at most the configured size.
func (c *Client) Fetch(ctx context.Context, endpoint outbound.Endpoint, req *pbx.Request) (*pbx.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(endpoint))
	defer cancel()

	var payload *pbx.Payload
	err := c.observe(ctx, endpoint, req.Action, func(ctx context.Context) (int, error) {
		resp, err := c.post(ctx, endpoint, req)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPayloadSize+1))
		if err != nil {
			return resp.StatusCode, &pbx.RemoteError{Op: req.Action, Err: fmt.Errorf("read payload: %w", err)}
		}
		if err := checkStatus(req.Action, resp.StatusCode, data); err != nil {
			return resp.StatusCode, err
		}
		if int64(len(data)) > c.maxPayloadSize {
			return resp.StatusCode, &pbx.RemoteError{
				Op:  req.Action,
				Err: fmt.Errorf("payload exceeds %d bytes", c.maxPayloadSize),
			}
		}
		payload = &pbx.Payload{
			HTTPStatus:    resp.StatusCode,
			ContentType:   resp.Header.Get("Content-Type"),
			ContentLength: int64(len(data)),
			Data:          data,
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Open posts req and hands the unread answer to the caller. The data timeout
// bounds the whole exchange, body included; the timer is released when the
// body is closed.
func (c *Client) Open(ctx context.Context, endpoint outbound.Endpoint, req *pbx.Request) (*pbx.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(endpoint))

	var stream *pbx.Stream
	err := c.observe(ctx, endpoint, req.Action, func(ctx context.Context) (int, error) {
		resp, err := c.post(ctx, endpoint, req)
		if err != nil {
			return 0, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
			return resp.StatusCode, checkStatus(req.Action, resp.StatusCode, body)
		}
		stream = &pbx.Stream{
			HTTPStatus:    resp.StatusCode,
			ContentType:   resp.Header.Get("Content-Type"),
			ContentLength: resp.ContentLength,
			Body:          &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return stream, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) post(ctx context.Context, endpoint outbound.Endpoint, req *pbx.Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &pbx.RemoteError{Op: req.Action, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.urls[endpoint], bytes.NewReader(body))
	if err != nil {
		return nil, &pbx.RemoteError{Op: req.Action, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "*/*")
	if req.Cookie != "" {
		httpReq.Header.Set("Cookie", req.Cookie)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &pbx.RemoteError{Op: req.Action, Err: err}
	}
	return resp, nil
}

// observe runs fn under the circuit breaker, a span and the call metrics.
func (c *Client) observe(ctx context.Context, endpoint outbound.Endpoint, action string, fn func(context.Context) (int, error)) error {
	ctx, span := c.tracer.Start(ctx, "pbx."+action, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	var status int
	run := func() (any, error) {
		var err error
		status, err = fn(ctx)
		return nil, err
	}

	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(run)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &pbx.RemoteError{Op: action, Err: err}
		}
	} else {
		_, err = run()
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := []attribute.KeyValue{
		attribute.String("pbx.action", action),
		attribute.String("pbx.endpoint", endpoint.String()),
		attribute.String("outcome", outcome),
	}
	span.SetAttributes(append(attrs, attribute.Int("http.response.status_code", status))...)
	c.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))

	c.logger.Debug("pbx call",
		"action", action,
		"endpoint", endpoint.String(),
		"status", status,
		"duration", time.Since(start),
		"outcome", outcome)
	return err
}

// BreakerState reports the circuit breaker state, or "disabled" when the
// client runs without one.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

func (c *Client) timeoutFor(endpoint outbound.Endpoint) time.Duration {
	if endpoint == outbound.EndpointControl {
		return c.authTimeout
	}
	return c.dataTimeout
}

// checkStatus turns a non-2xx answer into a RemoteError keeping a snippet of
// the body.
func checkStatus(action string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if len(body) > errorBodySnippet {
		body = body[:errorBodySnippet]
	}
	return &pbx.RemoteError{Op: action, HTTPStatus: status, Body: body}
}

// cancelOnClose releases the request context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Compile-time interface verification.
var _ outbound.PBXClient = (*Client)(nil)
