package identity

import (
	"net/http"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
)

// RequireSession rejects requests until a session is established:
// 503 while the initial lookup is still running, 401 when signed out.
func RequireSession(sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sessions.State() {
			case StateLoading:
				w.Header().Set("Retry-After", "1")
				httputil.Error(w, http.StatusServiceUnavailable, "session is loading")
			case StateUnauthenticated:
				httputil.Error(w, http.StatusUnauthorized, "not signed in")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequirePermission is RequireSession plus a role check against the
// signed-in profile.
func RequirePermission(sessions *SessionManager, perm domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.HasPermission(perm) {
				httputil.Error(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
		return RequireSession(sessions)(check)
	}
}
