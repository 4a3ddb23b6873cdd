package http

import (
	"fmt"
	"net/http"
	"runtime"

	json "github.com/goccy/go-json"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// BreakerReporter exposes the state of the PBX circuit breaker.
type BreakerReporter interface {
	BreakerState() string
}

// HealthChecker verifies component health.
type HealthChecker struct {
	sessions func() int
	cache    func() int
	pbx      BreakerReporter
	version  string
}

// NewHealthChecker creates a HealthChecker. Nil components are reported as
// not configured.
func NewHealthChecker(sessions, cache func() int, pbx BreakerReporter, version string) *HealthChecker {
	return &HealthChecker{
		sessions: sessions,
		cache:    cache,
		pbx:      pbx,
		version:  version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	// Len takes the store lock; a hang here means a stuck store.
	if h.sessions != nil {
		checks["session_store"] = fmt.Sprintf("ok: %d sessions", h.sessions())
	} else {
		checks["session_store"] = "not configured"
	}
	if h.cache != nil {
		checks["cache"] = fmt.Sprintf("ok: %d entries", h.cache())
	} else {
		checks["cache"] = "not configured"
	}

	if h.pbx != nil {
		state := h.pbx.BreakerState()
		checks["pbx_breaker"] = state
		if state == "open" {
			healthy = false
		}
	} else {
		checks["pbx_breaker"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}

// healthHandler is the fallback when no checker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}` + "\n"))
	})
}
