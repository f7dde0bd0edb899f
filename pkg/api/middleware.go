package api

import (
	"context"
	"net/http"
	"time"

	"github.com/skarvik/accountd/pkg/api/store"
)

type contextKey string

const (
	permsContextKey      contextKey = "permissions"
	sessionKeyContextKey contextKey = "session-key"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// authenticate resolves a bearer session key into request-scoped
// permissions. The key is re-resolved on every request, so revocation
// and expiry take effect immediately. Requests without a resolvable key
// pass through unauthenticated; requireSession decides whether that is
// fatal for the route.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := unwrapBearer(r.Header.Get("Authorization"))
		if !ok {
			next.ServeHTTP(w, r)

			return
		}

		perms, err := s.sessions.Resolve(r.Context(), token)
		if err != nil {
			s.writeError(w, err)

			return
		}

		if perms == nil {
			next.ServeHTTP(w, r)

			return
		}

		ctx := context.WithValue(r.Context(), permsContextKey, perms)
		ctx = context.WithValue(ctx, sessionKeyContextKey, token)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession rejects requests that carry no resolved permissions.
func (s *server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if permissionsFromContext(r.Context()) == nil {
			s.writeError(w,
				clientErr(errUnauthorized, "authentication required"))

			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects requests whose permissions lack the admin flag.
func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perms := permissionsFromContext(r.Context())
		if perms == nil {
			s.writeError(w,
				clientErr(errUnauthorized, "authentication required"))

			return
		}

		if !perms.Admin {
			s.writeError(w,
				clientErr(errForbidden, "admin access required"))

			return
		}

		next.ServeHTTP(w, r)
	})
}

// noStore disables caching on API responses.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// permissionsFromContext extracts the resolved permissions, or nil when
// the request is unauthenticated.
func permissionsFromContext(ctx context.Context) *store.Permissions {
	perms, _ := ctx.Value(permsContextKey).(*store.Permissions)

	return perms
}

// sessionKeyFromContext extracts the bearer key the permissions were
// resolved from.
func sessionKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(sessionKeyContextKey).(string)

	return key
}
