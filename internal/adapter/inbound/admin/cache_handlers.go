package admin

import (
	"net/http"
)

// handleCacheStatus reports cache and session counters.
func (h *AdminAPIHandler) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.unavailable(w, "cache")
		return
	}
	h.respondJSON(w, http.StatusOK, h.cache.Status())
}

// handleClearCache empties the cache, or only the keys containing the
// pattern query parameter.
func (h *AdminAPIHandler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.unavailable(w, "cache")
		return
	}

	pattern := r.URL.Query().Get("pattern")
	var cleared int
	if pattern != "" {
		cleared = h.cache.ClearByPattern(pattern)
	} else {
		cleared = h.cache.ClearAll()
	}
	h.logger.Info("cache cleared by admin", "pattern", pattern, "cleared", cleared)
	h.respondJSON(w, http.StatusOK, map[string]any{"cleared": cleared, "pattern": pattern})
}

// handleSweep runs the reaper once, outside its schedule.
func (h *AdminAPIHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		h.unavailable(w, "reaper")
		return
	}
	h.respondJSON(w, http.StatusOK, h.sweeper.SweepOnce())
}
