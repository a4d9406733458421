package records

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/platform/httpx"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/shared"
)

// Handler exposes the record table over HTTP.
type Handler struct {
	logger *slog.Logger
	gate   *Gate
	rbac   rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, gate *Gate, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, rbac: rbac}
}

// MountRoutes registers record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireSession)
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

type listResponse struct {
	Records []rbac.View `json:"records"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	seq, err := h.gate.List(r.Context(), sess, r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views, err := Collect(seq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Records: views})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var fields domain.Fields
	if err := httpx.DecodeJSON(r, &fields); err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.gate.Create(r.Context(), shared.SessionFromContext(r.Context()), fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var fields domain.Fields
	if err := httpx.DecodeJSON(r, &fields); err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.gate.Update(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"), fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Delete(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.ErrorContext(r.Context(), "records request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
