package admin

import (
	"net/http"
	"time"

	"github.com/pbxgate/pbxgate/internal/domain/session"
)

// SessionListResponse is the JSON response of the session listings.
type SessionListResponse struct {
	Sessions  []session.View `json:"sessions"`
	Count     int            `json:"count"`
	Timestamp time.Time      `json:"timestamp"`
}

// handleListSessions returns every stored session, expired ones included.
func (h *AdminAPIHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.unavailable(w, "session store")
		return
	}
	h.respondSessions(w, h.sessions.ListAll())
}

// handleActiveSessions returns the sessions that have not expired.
func (h *AdminAPIHandler) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.unavailable(w, "session store")
		return
	}
	h.respondSessions(w, h.sessions.ActiveSessions())
}

func (h *AdminAPIHandler) respondSessions(w http.ResponseWriter, views []session.View) {
	if views == nil {
		views = []session.View{}
	}
	h.respondJSON(w, http.StatusOK, SessionListResponse{
		Sessions:  views,
		Count:     len(views),
		Timestamp: time.Now().UTC(),
	})
}

// handleDeleteSession drops the stored session of a user. The PBX session
// itself stays open.
func (h *AdminAPIHandler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.unavailable(w, "session store")
		return
	}
	user := h.pathParam(r, "user")
	if !h.sessions.Delete(user) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Info("session deleted by admin", "user", user)
	h.respondJSON(w, http.StatusOK, map[string]any{"user": user, "deleted": true})
}
