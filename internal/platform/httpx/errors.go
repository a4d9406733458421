// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/console/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Denials use
// a fixed detail so the failing rule is never disclosed.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", `Bearer realm="console"`)
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "you are not allowed to perform this action")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrDuplicateUsername):
		Problem(w, http.StatusConflict, "Duplicate Username", err.Error())
	case errors.Is(err, shared.ErrLastAdminRemoval):
		Problem(w, http.StatusConflict, "Last Admin", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrStorageUnavailable):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "storage temporarily unavailable")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	for _, target := range []error{
		shared.ErrNotAuthenticated, shared.ErrInvalidCredentials, shared.ErrForbidden,
		shared.ErrNotFound, shared.ErrDuplicateUsername, shared.ErrLastAdminRemoval,
		shared.ErrConflict, shared.ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
