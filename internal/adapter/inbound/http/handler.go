package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/pbxgate/pbxgate/internal/domain/pbx"
	"github.com/pbxgate/pbxgate/internal/domain/ratelimit"
	"github.com/pbxgate/pbxgate/internal/domain/session"
	"github.com/pbxgate/pbxgate/internal/port/inbound"
	"github.com/pbxgate/pbxgate/internal/service"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// ChecksumTrailer carries the xxhash of a streamed recording.
const ChecksumTrailer = "X-Content-Checksum"

// Services are the core operations the gateway API exposes. Every field is
// required.
type Services struct {
	Auth       inbound.Authenticator
	Sessions   inbound.SessionDirectory
	Recordings inbound.RecordingFetcher
	CDR        inbound.CDRReporter
	Calls      inbound.CallController
}

// Handler serves the /api/v1 gateway routes.
type Handler struct {
	svc      Services
	throttle ratelimit.Limiter
	metrics  *Metrics
	validate *validator.Validate
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLoginThrottle limits login attempts per client address.
func WithLoginThrottle(l ratelimit.Limiter) HandlerOption {
	return func(h *Handler) { h.throttle = l }
}

// WithHandlerLogger sets the fallback logger used outside of a request.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates the gateway API handler.
func NewHandler(svc Services, opts ...HandlerOption) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	h := &Handler{
		svc:      svc,
		validate: v,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the gateway API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/challenge", h.handleChallenge)
	mux.HandleFunc("POST /api/v1/auth/token-login", h.handleTokenLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", h.handleLogout)

	mux.HandleFunc("POST /api/v1/sessions", h.handleStoreSession)
	mux.HandleFunc("GET /api/v1/sessions/{user}", h.handleGetSession)
	mux.HandleFunc("GET /api/v1/sessions/{user}/cookie", h.handleGetCookie)
	mux.HandleFunc("POST /api/v1/sessions/{user}/validate", h.handleValidateSession)

	mux.HandleFunc("POST /api/v1/recordings/fetch", h.handleFetchRecording)
	mux.HandleFunc("POST /api/v1/recordings/stream", h.handleStreamRecording)
	mux.HandleFunc("POST /api/v1/cdr", h.handleCDR)
	mux.HandleFunc("POST /api/v1/calls", h.handleMakeCall)

	return mux
}

type loginRequest struct {
	User     string `json:"user" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Success bool `json:"success"`
	*service.LoginResult
}

type challengeRequest struct {
	User string `json:"user" validate:"required"`
}

type tokenLoginRequest struct {
	User  string `json:"user" validate:"required"`
	Token string `json:"token" validate:"required"`
}

type logoutRequest struct {
	User   string `json:"user"`
	Cookie string `json:"cookie" validate:"required_without=User"`
}

type storeSessionRequest struct {
	User   string `json:"user" validate:"required"`
	Cookie string `json:"cookie" validate:"required"`
}

type validateSessionRequest struct {
	Cookie string `json:"cookie" validate:"required"`
}

type recordingRequest struct {
	User     string `json:"user"`
	Cookie   string `json:"cookie"`
	Filename string `json:"filename"`
	Action   string `json:"action"`
}

type streamRequest struct {
	User     string `json:"user"`
	Cookie   string `json:"cookie" validate:"required_without=User"`
	Filename string `json:"filename" validate:"required"`
	Action   string `json:"action"`
}

type cdrRequest struct {
	User      string         `json:"user"`
	Cookie    string         `json:"cookie"`
	Action    string         `json:"action"`
	Caller    string         `json:"caller"`
	Callee    string         `json:"callee"`
	Format    string         `json:"format"`
	StartTime string         `json:"startTime"`
	EndTime   string         `json:"endTime"`
	Filters   map[string]any `json:"filters"`
}

type callRequest struct {
	User      string `json:"user"`
	Cookie    string `json:"cookie" validate:"required_without=User"`
	Extension string `json:"ext" validate:"required"`
	Number    string `json:"number" validate:"required"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status *int   `json:"status,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allowLogin(w, r) {
		return
	}

	res, err := h.svc.Auth.Login(r.Context(), req.User, req.Password)
	h.countLogin(string(session.MethodPassword), loginResult(err))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, loginResponse{Success: true, LoginResult: res})
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allowLogin(w, r) {
		return
	}

	res := h.svc.Auth.Challenge(r.Context(), req.User)
	result := "error"
	if res.Login != nil {
		result = "rejected"
		if res.Login.Success {
			result = "ok"
		}
	}
	h.countLogin(string(session.MethodChallengeAutoLogin), result)
	h.respondJSON(w, r, http.StatusOK, res)
}

func (h *Handler) handleTokenLogin(w http.ResponseWriter, r *http.Request) {
	var req tokenLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allowLogin(w, r) {
		return
	}

	reply, err := h.svc.Auth.TokenLogin(r.Context(), req.User, req.Token)
	h.countLogin(string(session.MethodToken), loginResult(err))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondRaw(w, r, reply.JSON())
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.svc.Auth.Logout(r.Context(), req.User, req.Cookie)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondRaw(w, r, reply.JSON())
}

func (h *Handler) handleStoreSession(w http.ResponseWriter, r *http.Request) {
	var req storeSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondJSON(w, r, http.StatusCreated, h.svc.Sessions.StoreSimple(req.User, req.Cookie))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Sessions.GetSession(r.PathValue("user"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, rec)
}

func (h *Handler) handleGetCookie(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	cookie, err := h.svc.Sessions.GetCookie(user)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]string{"user": user, "cookie": cookie})
}

func (h *Handler) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	var req validateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := r.PathValue("user")
	h.respondJSON(w, r, http.StatusOK, map[string]any{
		"user":  user,
		"valid": h.svc.Sessions.Validate(user, req.Cookie),
	})
}

func (h *Handler) handleFetchRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.svc.Recordings.Fetch(r.Context(), service.RecordingRequest(req))
	if h.metrics != nil {
		result := "failed"
		switch {
		case res.Success && res.Cached:
			result = "hit"
		case res.Success:
			result = "miss"
		}
		h.metrics.RecordingFetches.WithLabelValues(result).Inc()
	}
	h.respondJSON(w, r, http.StatusOK, res)
}

func (h *Handler) handleStreamRecording(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if !h.decode(w, r, &req) {
		return
	}

	stream, err := h.svc.Recordings.Stream(r.Context(), service.RecordingRequest(req))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	defer func() { _ = stream.Body.Close() }()

	// Content-Length is left out so the response is chunked and can carry
	// the checksum trailer.
	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(req.Filename)))
	w.Header().Set("Trailer", ChecksumTrailer)
	w.WriteHeader(http.StatusOK)

	digest := xxhash.New()
	n, err := io.Copy(w, io.TeeReader(stream.Body, digest))
	if err != nil {
		LoggerFromContext(r.Context()).Warn("recording stream interrupted",
			"filename", req.Filename, "bytes", n, "error", err)
		return
	}
	w.Header().Set(ChecksumTrailer, fmt.Sprintf("%016x", digest.Sum64()))
}

func (h *Handler) handleCDR(w http.ResponseWriter, r *http.Request) {
	var req cdrRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.svc.CDR.Query(r.Context(), service.CDRQuery{
		User:      req.User,
		Cookie:    req.Cookie,
		Action:    req.Action,
		Caller:    req.Caller,
		Callee:    req.Callee,
		Format:    req.Format,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Extra:     req.Filters,
	})
	h.respondJSON(w, r, http.StatusOK, res)
}

func (h *Handler) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.svc.Calls.MakeCall(r.Context(), service.CallRequest(req))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondRaw(w, r, reply.JSON())
}

// allowLogin applies the login throttle keyed by client address.
func (h *Handler) allowLogin(w http.ResponseWriter, r *http.Request) bool {
	if h.throttle == nil {
		return true
	}
	ip := ClientIPFromContext(r.Context())
	if ip == "" {
		ip = extractRealIP(r, false)
	}
	res := h.throttle.Allow(ratelimit.Key(ratelimit.AreaLogin, ratelimit.ScopeIP, ip))
	if res.Allowed {
		return true
	}

	if h.metrics != nil {
		h.metrics.ThrottledTotal.Inc()
	}
	LoggerFromContext(r.Context()).Warn("login throttled", "client_ip", ip, "retry_after", res.RetryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	h.respondError(w, r, http.StatusTooManyRequests, "too many login attempts")
	return false
}

func (h *Handler) countLogin(method, result string) {
	if h.metrics != nil {
		h.metrics.LoginAttempts.WithLabelValues(method, result).Inc()
	}
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pbx.ErrLoginRejected):
		return "rejected"
	default:
		return "error"
	}
}

// decode reads a JSON body into v and validates it. On failure the error
// response is already written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, r, http.StatusRequestEntityTooLarge, "request body too large (max 1MB)")
			return false
		}
		h.respondError(w, r, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		h.respondError(w, r, http.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.respondError(w, r, http.StatusBadRequest, formatValidationErrors(err))
		return false
	}
	return true
}

// statusForError maps the core error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pbx.ErrNoActiveSession):
		return http.StatusUnauthorized
	case errors.Is(err, pbx.ErrLoginRejected), errors.Is(err, pbx.ErrChallengeUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, pbx.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	resp := errorResponse{Error: err.Error()}
	if remote, ok := pbx.StatusOf(err); ok && errors.Is(err, pbx.ErrLoginRejected) {
		resp.Status = &remote
	}
	if status == http.StatusInternalServerError {
		LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	} else {
		LoggerFromContext(r.Context()).Info("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.respondJSON(w, r, status, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.respondJSON(w, r, status, errorResponse{Error: message})
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		LoggerFromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// respondRaw writes a PBX answer unchanged.
func (h *Handler) respondRaw(w http.ResponseWriter, r *http.Request, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		LoggerFromContext(r.Context()).Debug("failed to write response", "error", err)
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// formatValidationErrors converts validator errors into one readable line.
func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required when %s is empty", fe.Field(), strings.ToLower(fe.Param())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
