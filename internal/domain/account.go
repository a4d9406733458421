package domain

import "time"

// Account is a login identity. Mainadmin accounts carry no company.
type Account struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"companyId,omitempty"`
	DisplayName  string    `json:"displayName"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Company is a tenant.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
