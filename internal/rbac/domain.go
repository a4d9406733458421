package rbac

import (
	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/shared"
)

// Action names an operation subject to authorization.
type Action string

const (
	ListRecords   Action = "listRecords"
	CreateRecord  Action = "createRecord"
	EditRecord    Action = "editRecord"
	DeleteRecord  Action = "deleteRecord"
	ListUsers     Action = "listUsers"
	CreateUser    Action = "createUser"
	EditUser      Action = "editUser"
	DeleteUser    Action = "deleteUser"
	ManageCompany Action = "manageCompany"
)

// Actions lists every action in table order.
var Actions = []Action{
	ListRecords, CreateRecord, EditRecord, DeleteRecord,
	ListUsers, CreateUser, EditUser, DeleteUser,
	ManageCompany,
}

// Target describes the resource an action touches. CreatedBy is only
// meaningful for records.
type Target struct {
	CompanyID string
	CreatedBy string
}

// DenyReason is the machine-readable cause of a denial. It is logged and
// counted but never returned to callers.
type DenyReason string

const (
	NotAuthenticated DenyReason = "not_authenticated"
	WrongCompany     DenyReason = "wrong_company"
	InsufficientRole DenyReason = "insufficient_role"
	NotOwner         DenyReason = "not_owner"
)

// Decision is the outcome of CanPerform.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the single permitting decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a denial carrying reason.
func Deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err maps the decision onto the public error taxonomy.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == NotAuthenticated:
		return shared.ErrNotAuthenticated
	default:
		return shared.ErrForbidden
	}
}

// SearchRequired reports whether role may only see search results and never
// an unfiltered listing. This is a presentation rule applied after policy.
func SearchRequired(role domain.Role) bool {
	return role == domain.RoleUser || role == domain.RoleStaff
}
