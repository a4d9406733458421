package domain

import "time"

// Record is a row of the shared record table.
type Record struct {
	ID        string
	CompanyID string
	// CreatedBy is a non-owning reference; the account may no longer exist.
	CreatedBy string
	// CreatorName is filled by the store when CreatedBy still resolves.
	CreatorName string
	Fields      Fields
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
