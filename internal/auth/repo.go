package auth

import (
	"context"
	"time"

	"github.com/odyssey-erp/console/internal/domain"
)

// Repository defines the account lookups auth needs. *accounts.Repository
// satisfies it.
type Repository interface {
	FindByUsername(ctx context.Context, companyID, username string) (domain.Account, error)
	GetByID(ctx context.Context, id string) (domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// Sessions is the bearer session store. *shared.SessionStore satisfies it.
type Sessions interface {
	Issue(ctx context.Context, acct domain.Account) (domain.Session, error)
	Lookup(ctx context.Context, token string) (domain.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeAccount(ctx context.Context, accountID string) (int, error)
	TTL() time.Duration
}
