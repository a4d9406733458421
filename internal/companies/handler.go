package companies

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/platform/httpx"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/shared"
)

// Handler exposes the company registry over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers company routes. Listing is public.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSession)
		r.Use(h.rbac.RequireEligible(rbac.ManageCompany))
		r.Post("/", h.create)
		r.Put("/{id}", h.rename)
		r.Delete("/{id}", h.remove)
	})
}

type listResponse struct {
	Companies []domain.Company `json:"companies"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListCompanies(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Companies: list})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in NewCompany
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.CreateCompany(r.Context(), shared.SessionFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	var in renameRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	company, err := h.service.RenameCompany(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"), in.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	var opts DeleteOptions
	if raw := r.URL.Query().Get("cascade"); raw != "" {
		cascade, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "cascade must be a boolean")
			return
		}
		opts.Cascade = cascade
	}
	if err := h.service.DeleteCompany(r.Context(), shared.SessionFromContext(r.Context()), chi.URLParam(r, "id"), opts); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.ErrorContext(r.Context(), "companies request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
