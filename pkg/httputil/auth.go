package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/civictrack/civictrack-backend/pkg/actor"
	"github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/permissions"
)

// Authenticator resolves a bearer token to the actor it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*actor.Actor, error)
}

// Authenticate attaches the actor named by the Authorization header to the
// request context. Requests without the header pass through anonymously;
// a malformed or rejected token is answered with 401.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				ErrorLocalized(w, r, errors.TokenInvalid())
				return
			}

			a, err := auth.Authenticate(r.Context(), parts[1])
			if err != nil {
				ErrorLocalized(w, r, err)
				return
			}

			ctx := actor.WithActor(r.Context(), a)
			if rw, ok := w.(*responseWriter); ok {
				rw.ctx = ctx
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor.FromContext(r.Context()).IsAnonymous() {
			ErrorLocalized(w, r, errors.Unauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects requests whose actor lacks perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actor.FromContext(r.Context())
			if a.IsAnonymous() {
				ErrorLocalized(w, r, errors.Unauthorized("authentication required"))
				return
			}
			if !permissions.HasPermission(a.Permissions, perm) {
				ErrorLocalized(w, r, errors.Forbidden("missing permission "+perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
