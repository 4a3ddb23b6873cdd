package admin

import (
	"net/http"
	"runtime"
	"time"
)

// BuildInfo holds build-time version information.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SystemInfoResponse is the JSON response for GET /admin/api/system.
type SystemInfoResponse struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	Uptime     string `json:"uptime"`
	UptimeSec  int64  `json:"uptime_seconds"`
	Goroutines int    `json:"goroutines"`
	AdminKeys  int    `json:"admin_keys"`
}

// handleSystemInfo returns version, uptime and runtime information.
func (h *AdminAPIHandler) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	resp := SystemInfoResponse{
		Version:    "dev",
		Commit:     "none",
		BuildDate:  "unknown",
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Uptime:     uptime.Truncate(time.Second).String(),
		UptimeSec:  int64(uptime.Seconds()),
		Goroutines: runtime.NumGoroutine(),
		AdminKeys:  h.keyring.Len(),
	}
	if h.buildInfo != nil {
		resp.Version = h.buildInfo.Version
		resp.Commit = h.buildInfo.Commit
		resp.BuildDate = h.buildInfo.BuildDate
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// handleConfig returns the effective configuration as YAML.
func (h *AdminAPIHandler) handleConfig(w http.ResponseWriter, r *http.Request) {
	if h.renderCfg == nil {
		h.unavailable(w, "config")
		return
	}
	out, err := h.renderCfg()
	if err != nil {
		h.logger.Error("failed to render config", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to render config")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
