package rbac

import "github.com/odyssey-erp/console/internal/domain"

type effect uint8

const (
	allow effect = iota + 1
	allowOwner
)

type scope uint8

const (
	ownCompany scope = iota
	anyCompany
)

type rule struct {
	role    domain.Role
	actions []Action
	scope   scope
	effect  effect
}

func (r rule) covers(action Action) bool {
	for _, a := range r.actions {
		if a == action {
			return true
		}
	}
	return false
}

// rules is evaluated top-down; the first rule matching role and action wins.
// Anything unmatched is denied with InsufficientRole.
var rules = []rule{
	{role: domain.RoleMainadmin, actions: []Action{ManageCompany}, scope: anyCompany, effect: allow},
	{role: domain.RoleSuperadmin, actions: []Action{
		ListRecords, CreateRecord, EditRecord, DeleteRecord,
		ListUsers, CreateUser, EditUser, DeleteUser,
	}, scope: ownCompany, effect: allow},
	{role: domain.RoleStaff, actions: []Action{ListRecords, CreateRecord}, scope: ownCompany, effect: allow},
	{role: domain.RoleStaff, actions: []Action{EditRecord}, scope: ownCompany, effect: allowOwner},
	{role: domain.RoleUser, actions: []Action{ListRecords}, scope: ownCompany, effect: allow},
}

// CanPerform decides whether sess may perform action on target. It has no
// side effects.
func CanPerform(sess *domain.Session, action Action, target Target) Decision {
	if !sess.Authenticated() {
		return Deny(NotAuthenticated)
	}
	for _, r := range rules {
		if r.role != sess.Role || !r.covers(action) {
			continue
		}
		if r.scope == ownCompany && (sess.CompanyID == "" || target.CompanyID != sess.CompanyID) {
			return Deny(WrongCompany)
		}
		if r.effect == allowOwner && (target.CreatedBy == "" || target.CreatedBy != sess.AccountID) {
			return Deny(NotOwner)
		}
		return Allow()
	}
	return Deny(InsufficientRole)
}

// Eligible evaluates action against the most favourable target: the caller's
// own company and a resource the caller created. It lets services reject an
// action before touching storage.
func Eligible(sess *domain.Session, action Action) Decision {
	if !sess.Authenticated() {
		return Deny(NotAuthenticated)
	}
	return CanPerform(sess, action, Target{CompanyID: sess.CompanyID, CreatedBy: sess.AccountID})
}

// Permitted lists the actions sess is eligible for.
func Permitted(sess *domain.Session) []Action {
	out := make([]Action, 0, len(Actions))
	for _, a := range Actions {
		if Eligible(sess, a).Allowed {
			out = append(out, a)
		}
	}
	return out
}
