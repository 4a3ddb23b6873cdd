// Package admin serves the operator API for sessions, the recording cache
// and runtime information.
package admin

import (
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pbxgate/pbxgate/internal/domain/auth"
	"github.com/pbxgate/pbxgate/internal/domain/ratelimit"
	"github.com/pbxgate/pbxgate/internal/port/inbound"
)

// ConfigRenderer returns the effective configuration with secrets redacted.
type ConfigRenderer func() ([]byte, error)

// AdminAPIHandler provides the JSON endpoints under /admin/api/.
type AdminAPIHandler struct {
	sessions  inbound.SessionDirectory
	cache     inbound.CacheAdmin
	sweeper   inbound.Sweeper
	keyring   *auth.Keyring
	limiter   ratelimit.Limiter
	renderCfg ConfigRenderer
	buildInfo *BuildInfo
	logger    *slog.Logger
	startTime time.Time
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithSessionDirectory sets the session store facade.
func WithSessionDirectory(s inbound.SessionDirectory) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.sessions = s }
}

// WithCacheAdmin sets the recording cache facade.
func WithCacheAdmin(c inbound.CacheAdmin) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.cache = c }
}

// WithSweeper sets the reaper used by POST /admin/api/cache/sweep.
func WithSweeper(s inbound.Sweeper) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.sweeper = s }
}

// WithKeyring enables API key access for remote clients.
func WithKeyring(k *auth.Keyring) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.keyring = k }
}

// WithRateLimiter limits remote admin requests per client address.
func WithRateLimiter(l ratelimit.Limiter) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.limiter = l }
}

// WithConfigRenderer sets the source of GET /admin/api/config.
func WithConfigRenderer(fn ConfigRenderer) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.renderCfg = fn }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// WithBuildInfo sets the build version information.
func WithBuildInfo(info *BuildInfo) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.buildInfo = info }
}

// WithStartTime sets the server start time for uptime calculation.
func WithStartTime(t time.Time) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.startTime = t }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
// Routes whose dependency was not configured answer 503.
func (h *AdminAPIHandler) Routes() http.Handler {
	protectedMux := http.NewServeMux()

	protectedMux.HandleFunc("GET /admin/api/sessions", h.handleListSessions)
	protectedMux.HandleFunc("GET /admin/api/sessions/active", h.handleActiveSessions)
	protectedMux.HandleFunc("DELETE /admin/api/sessions/{user}", h.handleDeleteSession)

	protectedMux.HandleFunc("GET /admin/api/cache", h.handleCacheStatus)
	protectedMux.HandleFunc("DELETE /admin/api/cache", h.handleClearCache)
	protectedMux.HandleFunc("POST /admin/api/cache/sweep", h.handleSweep)

	protectedMux.HandleFunc("GET /admin/api/system", h.handleSystemInfo)
	protectedMux.HandleFunc("GET /admin/api/config", h.handleConfig)

	mux := http.NewServeMux()
	mux.Handle("/admin/api/", h.adminAuthMiddleware(protectedMux))

	return securityHeaders(h.rateLimitMiddleware(mux))
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// pathParam extracts a named path parameter from the request URL.
func (h *AdminAPIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

func (h *AdminAPIHandler) unavailable(w http.ResponseWriter, what string) {
	h.respondError(w, http.StatusServiceUnavailable, what+" not configured")
}
