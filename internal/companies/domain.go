package companies

import "github.com/odyssey-erp/console/internal/domain"

// AdminSeed describes the first superadmin created with a company.
type AdminSeed struct {
	DisplayName string `json:"displayName" validate:"required,max=120"`
	Username    string `json:"username" validate:"required,max=64"`
	Password    string `json:"password" validate:"required,max=72"`
}

// NewCompany is the input for CreateCompany.
type NewCompany struct {
	Name  string    `json:"name" validate:"required,max=200"`
	Admin AdminSeed `json:"admin"`
}

// Provisioned is the result of CreateCompany.
type Provisioned struct {
	Company domain.Company `json:"company"`
	Admin   domain.Account `json:"admin"`
}

// DeleteOptions controls DeleteCompany. Without Cascade a company that still
// owns accounts or records is left in place.
type DeleteOptions struct {
	Cascade bool
}

// Usage counts what a company owns.
type Usage struct {
	Accounts int
	Records  int
}

// Empty reports whether nothing is owned.
func (u Usage) Empty() bool {
	return u.Accounts == 0 && u.Records == 0
}

// Purged reports what a cascading delete removed.
type Purged struct {
	AccountIDs []string
	Records    int64
}
