package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated indicates a missing, expired or unknown session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden is the generic denial; the failing rule is never disclosed.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound covers both absent and out-of-scope resources.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername indicates the username is taken within its scope.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrLastAdminRemoval blocks leaving a company without a superadmin.
	ErrLastAdminRemoval = errors.New("company must keep at least one superadmin")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request clashes with current state.
	ErrConflict = errors.New("conflict")
	// ErrCompanyNotEmpty is returned when deleting a company that still owns data.
	ErrCompanyNotEmpty = fmt.Errorf("company still owns accounts or records: %w", ErrConflict)
	// ErrStorageUnavailable wraps transient storage failures. Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
