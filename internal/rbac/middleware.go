package rbac

import (
	"net/http"

	"log/slog"

	"github.com/odyssey-erp/console/internal/platform/httpx"
	"github.com/odyssey-erp/console/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Enforcer *Enforcer
	Logger   *slog.Logger
}

// RequireSession rejects requests that carry no authenticated session.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shared.SessionFromContext(r.Context()).Authenticated() {
			httpx.RespondError(w, shared.ErrNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireEligible rejects requests whose session can never perform any of
// the given actions. Resource-level checks still happen in the services.
func (m Middleware) RequireEligible(actions ...Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			var err error
			for _, action := range actions {
				if err = m.Enforcer.CheckEligible(r.Context(), sess, action); err == nil {
					break
				}
			}
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
