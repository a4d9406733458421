package accounts

import "github.com/odyssey-erp/console/internal/domain"

// NewAccount is the input for CreateAccount.
type NewAccount struct {
	DisplayName string      `json:"displayName" validate:"required,max=120"`
	Username    string      `json:"username" validate:"required,max=64"`
	Password    string      `json:"password" validate:"required,max=72"`
	Role        domain.Role `json:"role" validate:"required"`
}

// Patch lists the account attributes to change. Nil fields are left alone.
type Patch struct {
	DisplayName *string      `json:"displayName,omitempty" validate:"omitempty,min=1,max=120"`
	Username    *string      `json:"username,omitempty" validate:"omitempty,min=1,max=64"`
	Password    *string      `json:"password,omitempty" validate:"omitempty,min=1,max=72"`
	Role        *domain.Role `json:"role,omitempty"`
}

func (p Patch) empty() bool {
	return p.DisplayName == nil && p.Username == nil && p.Password == nil && p.Role == nil
}
