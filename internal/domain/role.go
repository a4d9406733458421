package domain

// Role is the privilege tier bound to an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleStaff      Role = "staff"
	RoleSuperadmin Role = "superadmin"
	RoleMainadmin  Role = "mainadmin"
)

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleStaff, RoleSuperadmin, RoleMainadmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
