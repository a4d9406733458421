package rbac

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/shared"
)

const (
	companyA = "company-a"
	companyB = "company-b"
)

type grant int

const (
	no grant = iota
	yes
	ownerOnly
	global
)

// matrix is the expected permission grid, written independently of rules.
var allRoles = []domain.Role{domain.RoleUser, domain.RoleStaff, domain.RoleSuperadmin, domain.RoleMainadmin}

var matrix = map[domain.Role]map[Action]grant{
	domain.RoleMainadmin: {ManageCompany: global},
	domain.RoleSuperadmin: {
		ListRecords: yes, CreateRecord: yes, EditRecord: yes, DeleteRecord: yes,
		ListUsers: yes, CreateUser: yes, EditUser: yes, DeleteUser: yes,
	},
	domain.RoleStaff: {ListRecords: yes, CreateRecord: yes, EditRecord: ownerOnly},
	domain.RoleUser:  {ListRecords: yes},
}

func sessionFor(role domain.Role, accountID string) *domain.Session {
	sess := &domain.Session{AccountID: accountID, Role: role, Token: "t-" + accountID}
	if role != domain.RoleMainadmin {
		sess.CompanyID = companyA
	}
	return sess
}

// ============================================================================
// Rule table
// ============================================================================

func TestCanPerformMatrix(t *testing.T) {
	for _, role := range allRoles {
		for _, action := range Actions {
			for _, company := range []string{companyA, companyB} {
				for _, owned := range []bool{true, false} {
					name := fmt.Sprintf("%s/%s/%s/owned=%v", role, action, company, owned)
					t.Run(name, func(t *testing.T) {
						sess := sessionFor(role, "me")
						target := Target{CompanyID: company, CreatedBy: "someone-else"}
						if owned {
							target.CreatedBy = "me"
						}

						got := CanPerform(sess, action, target)
						want := expected(matrix[role][action], company == companyA, owned)
						assert.Equal(t, want, got.Allowed)
						if !got.Allowed {
							assert.NotEmpty(t, got.Reason)
							assert.ErrorIs(t, got.Err(), shared.ErrForbidden)
						}
					})
				}
			}
		}
	}
}

func expected(g grant, sameCompany, owned bool) bool {
	switch g {
	case global:
		return true
	case yes:
		return sameCompany
	case ownerOnly:
		return sameCompany && owned
	}
	return false
}

func TestCanPerformReasons(t *testing.T) {
	cases := []struct {
		name   string
		sess   *domain.Session
		action Action
		target Target
		reason DenyReason
	}{
		{"nil session", nil, ListRecords, Target{CompanyID: companyA}, NotAuthenticated},
		{"blank account", &domain.Session{Role: domain.RoleSuperadmin, CompanyID: companyA}, ListRecords, Target{CompanyID: companyA}, NotAuthenticated},
		{"unknown role", &domain.Session{AccountID: "x", Role: "root", CompanyID: companyA}, ListRecords, Target{CompanyID: companyA}, NotAuthenticated},
		{"superadmin other company", sessionFor(domain.RoleSuperadmin, "me"), DeleteRecord, Target{CompanyID: companyB}, WrongCompany},
		{"superadmin without company", &domain.Session{AccountID: "me", Role: domain.RoleSuperadmin}, ListUsers, Target{}, WrongCompany},
		{"staff foreign record", sessionFor(domain.RoleStaff, "me"), EditRecord, Target{CompanyID: companyA, CreatedBy: "bob"}, NotOwner},
		{"staff legacy record without creator", sessionFor(domain.RoleStaff, "me"), EditRecord, Target{CompanyID: companyA}, NotOwner},
		{"staff delete", sessionFor(domain.RoleStaff, "me"), DeleteRecord, Target{CompanyID: companyA, CreatedBy: "me"}, InsufficientRole},
		{"user create", sessionFor(domain.RoleUser, "me"), CreateRecord, Target{CompanyID: companyA}, InsufficientRole},
		{"mainadmin records", sessionFor(domain.RoleMainadmin, "root"), ListRecords, Target{CompanyID: companyA}, InsufficientRole},
		{"mainadmin users", sessionFor(domain.RoleMainadmin, "root"), CreateUser, Target{CompanyID: companyA}, InsufficientRole},
		{"superadmin manage company", sessionFor(domain.RoleSuperadmin, "me"), ManageCompany, Target{CompanyID: companyA}, InsufficientRole},
		{"unknown action", sessionFor(domain.RoleSuperadmin, "me"), Action("nuke"), Target{CompanyID: companyA}, InsufficientRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanPerform(tc.sess, tc.action, tc.target)
			assert.False(t, got.Allowed)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}

func TestDecisionErrNotAuthenticated(t *testing.T) {
	assert.ErrorIs(t, Deny(NotAuthenticated).Err(), shared.ErrNotAuthenticated)
	assert.NoError(t, Allow().Err())
}

func TestCanPerformIsDeterministic(t *testing.T) {
	sess := sessionFor(domain.RoleStaff, "me")
	target := Target{CompanyID: companyA, CreatedBy: "me"}
	first := CanPerform(sess, EditRecord, target)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, CanPerform(sess, EditRecord, target))
	}
}

// ============================================================================
// Properties
// ============================================================================

func TestStaffEditAllowedExactlyForOwnRecords(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	ids := []string{"a", "b", "c", "d", "e"}
	for i := 0; i < 500; i++ {
		editor := ids[rng.IntN(len(ids))]
		creator := ids[rng.IntN(len(ids))]
		got := CanPerform(sessionFor(domain.RoleStaff, editor), EditRecord, Target{CompanyID: companyA, CreatedBy: creator})
		require.Equal(t, editor == creator, got.Allowed, "editor=%s creator=%s", editor, creator)
	}
}

func TestCrossCompanyAlwaysDenied(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	scoped := []domain.Role{domain.RoleUser, domain.RoleStaff, domain.RoleSuperadmin}
	for i := 0; i < 500; i++ {
		role := scoped[rng.IntN(len(scoped))]
		action := Actions[rng.IntN(len(Actions))]
		sess := sessionFor(role, "me")
		got := CanPerform(sess, action, Target{CompanyID: companyB, CreatedBy: "me"})
		require.False(t, got.Allowed, "%s %s", role, action)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func TestEligible(t *testing.T) {
	assert.True(t, Eligible(sessionFor(domain.RoleStaff, "me"), EditRecord).Allowed)
	assert.False(t, Eligible(sessionFor(domain.RoleStaff, "me"), DeleteRecord).Allowed)
	assert.True(t, Eligible(sessionFor(domain.RoleMainadmin, "root"), ManageCompany).Allowed)
	assert.Equal(t, NotAuthenticated, Eligible(nil, ListRecords).Reason)
}

func TestPermitted(t *testing.T) {
	assert.Equal(t, []Action{ListRecords}, Permitted(sessionFor(domain.RoleUser, "u")))
	assert.Equal(t, []Action{ListRecords, CreateRecord, EditRecord}, Permitted(sessionFor(domain.RoleStaff, "s")))
	assert.Equal(t, []Action{ManageCompany}, Permitted(sessionFor(domain.RoleMainadmin, "m")))
	assert.Len(t, Permitted(sessionFor(domain.RoleSuperadmin, "a")), 8)
	assert.Empty(t, Permitted(nil))
}

func TestSearchRequired(t *testing.T) {
	assert.True(t, SearchRequired(domain.RoleUser))
	assert.True(t, SearchRequired(domain.RoleStaff))
	assert.False(t, SearchRequired(domain.RoleSuperadmin))
	assert.False(t, SearchRequired(domain.RoleMainadmin))
}

