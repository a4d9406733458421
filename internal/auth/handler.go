package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/console/internal/platform/httpx"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/shared"
)

// loginAttemptsPerMinute bounds password guessing per client IP.
const loginAttemptsPerMinute = 10

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(loginAttemptsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSession)
		r.Post("/logout", h.handleLogout)
		r.Post("/password", h.handlePassword)
	})
}

// SessionMiddleware resolves the bearer token into a session on the request
// context. Requests without a usable token continue anonymously.
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := h.service.Authorize(r.Context(), token)
		switch {
		case err == nil:
			r = r.WithContext(shared.ContextWithSession(r.Context(), &sess))
		case errors.Is(err, shared.ErrNotAuthenticated):
		default:
			h.logger.ErrorContext(r.Context(), "auth: resolve session", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := httpx.DecodeJSON(r, &creds); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Authenticate(r.Context(), creds)
	if err != nil {
		if !httpx.IsClientError(err) {
			h.logger.ErrorContext(r.Context(), "auth: login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "auth: login", slog.String("account_id", res.AccountID), slog.String("role", string(res.Role)))
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.service.Logout(r.Context(), sess.Token); err != nil {
		h.logger.WarnContext(r.Context(), "auth: logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	var change PasswordChange
	if err := httpx.DecodeJSON(r, &change); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), shared.SessionFromContext(r.Context()), change); err != nil {
		if !httpx.IsClientError(err) {
			h.logger.ErrorContext(r.Context(), "auth: change password", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
