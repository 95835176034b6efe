package middleware

import (
	"net/http"
	"strconv"

	"github.com/metrogrid/cityql/internal/auth"
)

// Header names set by the authentication gateway in front of this service.
// Token verification itself happens upstream; this middleware only carries
// the already-verified identity into the request context.
const (
	userIDHeader     = "X-User-ID"
	superadminHeader = "X-User-Superadmin"
)

// Principal attaches the caller identity to the request context. Requests
// without an identity run as the published (anonymous) principal.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.PublishedPrincipal

		if raw := r.Header.Get(userIDHeader); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}
			p = auth.Principal{
				UserID:     userID,
				Superadmin: r.Header.Get(superadminHeader) == "true",
			}
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)))
	})
}
