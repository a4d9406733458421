package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/platform/httpx"
	"github.com/odyssey-erp/console/internal/shared"
)

// PermissionsHandler reports what the current session may do so clients can
// hide controls that would be refused.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSession)
		r.Get("/", h.listPermissions)
	})
}

type permissionsResponse struct {
	AccountID      string      `json:"accountId"`
	Role           domain.Role `json:"role"`
	CompanyID      string      `json:"companyId,omitempty"`
	Actions        []Action    `json:"actions"`
	SearchRequired bool        `json:"searchRequired"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		AccountID:      sess.AccountID,
		Role:           sess.Role,
		CompanyID:      sess.CompanyID,
		Actions:        Permitted(sess),
		SearchRequired: SearchRequired(sess.Role),
	})
}
