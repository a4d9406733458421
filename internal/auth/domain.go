package auth

import (
	"time"

	"github.com/odyssey-erp/console/internal/domain"
)

// Credentials identify an account at login. An empty CompanyID selects the
// global scope, which only mainadmin accounts live in.
type Credentials struct {
	CompanyID string `json:"companyId" validate:"omitempty,uuid"`
	Username  string `json:"username" validate:"required,max=64"`
	Password  string `json:"password" validate:"required,max=72"`
}

// PasswordChange is the self-service password form.
type PasswordChange struct {
	Current string `json:"currentPassword" validate:"required"`
	Next    string `json:"newPassword" validate:"required,min=8,max=72"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	AccountID string      `json:"accountId"`
	Role      domain.Role `json:"role"`
	CompanyID string      `json:"companyId,omitempty"`
}
