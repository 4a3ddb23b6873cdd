package admin

import (
	"net"
	"net/http"
	"strings"
)

// isLocalhost checks if the request originates from a loopback address.
// X-Forwarded-For is not trusted here.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// adminAuthMiddleware lets loopback requests through. Remote requests need
// a bearer key from the keyring; without configured keys they are refused.
func (h *AdminAPIHandler) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLocalhost(r) {
			next.ServeHTTP(w, r)
			return
		}
		if h.keyring.Len() == 0 {
			h.respondError(w, http.StatusForbidden, "admin API requires localhost access")
			return
		}

		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="pbx-gate-admin"`)
			h.respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		name, err := h.keyring.Authenticate(token)
		if err != nil {
			h.logger.Warn("admin key rejected", "remote_addr", r.RemoteAddr)
			h.respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		h.logger.Debug("admin request authenticated", "key", name, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
