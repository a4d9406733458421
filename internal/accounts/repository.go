package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/platform/db"
	"github.com/odyssey-erp/console/internal/shared"
)

// RepositoryPort is the storage contract used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, acct domain.Account) (domain.Account, error)
	Get(ctx context.Context, companyID, id string) (domain.Account, error)
	ListByCompany(ctx context.Context, companyID string) ([]domain.Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is available inside WithTx. Get and CountSuperadmins lock the
// rows they read until the transaction ends.
type TxRepository interface {
	Get(ctx context.Context, companyID, id string) (domain.Account, error)
	CountSuperadmins(ctx context.Context, companyID string) (int, error)
	Update(ctx context.Context, acct domain.Account) (domain.Account, error)
	Delete(ctx context.Context, companyID, id string) error
}

// Repository provides Postgres persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const accountColumns = `id::text, COALESCE(company_id::text, ''), display_name, username, password_hash, role, created_at, updated_at`

// Create inserts acct.
func (r *Repository) Create(ctx context.Context, acct domain.Account) (domain.Account, error) {
	return Insert(ctx, r.pool, acct)
}

// Get loads an account belonging to companyID.
func (r *Repository) Get(ctx context.Context, companyID, id string) (domain.Account, error) {
	return txQueries{q: r.pool}.get(ctx, companyID, id, false)
}

// ListByCompany returns the company's accounts ordered by creation.
func (r *Repository) ListByCompany(ctx context.Context, companyID string) ([]domain.Account, error) {
	if !validID(companyID) {
		return []domain.Account{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id = $1 ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, shared.StorageError(fmt.Errorf("accounts: list: %w", err))
	}
	defer rows.Close()
	out := []domain.Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, shared.StorageError(rows.Err())
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txQueries{q: tx})
	})
}

// FindByUsername resolves a login name. An empty companyID searches the
// global mainadmin scope.
func (r *Repository) FindByUsername(ctx context.Context, companyID, username string) (domain.Account, error) {
	var row pgx.Row
	if companyID == "" {
		row = r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id IS NULL AND username = $1`, username)
	} else {
		if !validID(companyID) {
			return domain.Account{}, shared.ErrNotFound
		}
		row = r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id = $1 AND username = $2`, companyID, username)
	}
	return scanAccount(row)
}

// GetByID loads an account regardless of company.
func (r *Repository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	if !validID(id) {
		return domain.Account{}, shared.ErrNotFound
	}
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// UpdatePasswordHash stores a new hash for id.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return shared.StorageError(fmt.Errorf("accounts: update password: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// EarliestSuperadmin returns the first superadmin created in a company.
func (r *Repository) EarliestSuperadmin(ctx context.Context, companyID string) (domain.Account, error) {
	if !validID(companyID) {
		return domain.Account{}, shared.ErrNotFound
	}
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE company_id = $1 AND role = 'superadmin' ORDER BY created_at, id LIMIT 1`, companyID))
}

// Insert stores acct using q. The company registry calls it inside its own
// transaction when provisioning a company.
func Insert(ctx context.Context, q db.Querier, acct domain.Account) (domain.Account, error) {
	row := q.QueryRow(ctx, `INSERT INTO accounts (company_id, display_name, username, password_hash, role, created_at, updated_at)
VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $6)
RETURNING `+accountColumns, acct.CompanyID, acct.DisplayName, acct.Username, acct.PasswordHash, string(acct.Role), acct.CreatedAt)
	created, err := scanAccount(row)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return domain.Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateUsername, acct.Username)
		}
		return domain.Account{}, err
	}
	return created, nil
}

// IDsByCompany lists the ids of a company's accounts using q.
func IDsByCompany(ctx context.Context, q db.Querier, companyID string) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT id::text FROM accounts WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, shared.StorageError(fmt.Errorf("accounts: ids: %w", err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, shared.StorageError(fmt.Errorf("accounts: ids: %w", err))
	}
	return ids, nil
}

// PurgeCompany deletes every account of a company using q.
func PurgeCompany(ctx context.Context, q db.Querier, companyID string) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM accounts WHERE company_id = $1`, companyID)
	if err != nil {
		return 0, shared.StorageError(fmt.Errorf("accounts: purge company: %w", err))
	}
	return tag.RowsAffected(), nil
}

type txQueries struct {
	q db.Querier
}

func (t txQueries) Get(ctx context.Context, companyID, id string) (domain.Account, error) {
	return t.get(ctx, companyID, id, true)
}

func (t txQueries) get(ctx context.Context, companyID, id string, lock bool) (domain.Account, error) {
	if !validID(companyID) || !validID(id) {
		return domain.Account{}, shared.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND company_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanAccount(t.q.QueryRow(ctx, query, id, companyID))
}

func (t txQueries) CountSuperadmins(ctx context.Context, companyID string) (int, error) {
	rows, err := t.q.Query(ctx, `SELECT id FROM accounts WHERE company_id = $1 AND role = 'superadmin' FOR UPDATE`, companyID)
	if err != nil {
		return 0, shared.StorageError(fmt.Errorf("accounts: lock superadmins: %w", err))
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, shared.StorageError(rows.Err())
}

func (t txQueries) Update(ctx context.Context, acct domain.Account) (domain.Account, error) {
	row := t.q.QueryRow(ctx, `UPDATE accounts SET display_name = $3, username = $4, password_hash = $5, role = $6, updated_at = $7
WHERE id = $1 AND company_id = $2
RETURNING `+accountColumns, acct.ID, acct.CompanyID, acct.DisplayName, acct.Username, acct.PasswordHash, string(acct.Role), acct.UpdatedAt)
	updated, err := scanAccount(row)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return domain.Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateUsername, acct.Username)
		}
		return domain.Account{}, err
	}
	return updated, nil
}

func (t txQueries) Delete(ctx context.Context, companyID, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return shared.StorageError(fmt.Errorf("accounts: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var acct domain.Account
	var role string
	err := row.Scan(&acct.ID, &acct.CompanyID, &acct.DisplayName, &acct.Username, &acct.PasswordHash, &role, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, shared.ErrNotFound
		}
		if shared.IsUniqueViolation(err) {
			return domain.Account{}, err
		}
		return domain.Account{}, shared.StorageError(fmt.Errorf("accounts: scan: %w", err))
	}
	acct.Role = domain.Role(role)
	return acct, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
