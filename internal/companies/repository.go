package companies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/console/internal/accounts"
	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/platform/db"
	"github.com/odyssey-erp/console/internal/records"
	"github.com/odyssey-erp/console/internal/shared"
)

// RepositoryPort is the storage contract used by Service.
type RepositoryPort interface {
	List(ctx context.Context) ([]domain.Company, error)
	Rename(ctx context.Context, id, name string) (domain.Company, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository groups the statements that must commit together.
type TxRepository interface {
	Insert(ctx context.Context, name string, at time.Time) (domain.Company, error)
	InsertAccount(ctx context.Context, acct domain.Account) (domain.Account, error)
	Lock(ctx context.Context, id string) (domain.Company, error)
	Usage(ctx context.Context, id string) (Usage, error)
	Purge(ctx context.Context, id string) (Purged, error)
	Delete(ctx context.Context, id string) error
}

// Repository provides Postgres persistence for companies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// List returns every company ordered by name.
func (r *Repository) List(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, name, created_at FROM companies ORDER BY name, id`)
	if err != nil {
		return nil, shared.StorageError(fmt.Errorf("companies: list: %w", err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Company, error) {
		var c domain.Company
		err := row.Scan(&c.ID, &c.Name, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, shared.StorageError(fmt.Errorf("companies: list: %w", err))
	}
	if out == nil {
		out = []domain.Company{}
	}
	return out, nil
}

// Rename updates the company name.
func (r *Repository) Rename(ctx context.Context, id, name string) (domain.Company, error) {
	if !validID(id) {
		return domain.Company{}, shared.ErrNotFound
	}
	return scanCompany(r.pool.QueryRow(ctx, `UPDATE companies SET name = $2 WHERE id = $1 RETURNING id::text, name, created_at`, id, name))
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txQueries{q: tx})
	})
}

type txQueries struct {
	q db.Querier
}

func (t txQueries) Insert(ctx context.Context, name string, at time.Time) (domain.Company, error) {
	return scanCompany(t.q.QueryRow(ctx, `INSERT INTO companies (name, created_at) VALUES ($1, $2) RETURNING id::text, name, created_at`, name, at))
}

func (t txQueries) InsertAccount(ctx context.Context, acct domain.Account) (domain.Account, error) {
	return accounts.Insert(ctx, t.q, acct)
}

func (t txQueries) Lock(ctx context.Context, id string) (domain.Company, error) {
	if !validID(id) {
		return domain.Company{}, shared.ErrNotFound
	}
	return scanCompany(t.q.QueryRow(ctx, `SELECT id::text, name, created_at FROM companies WHERE id = $1 FOR UPDATE`, id))
}

func (t txQueries) Usage(ctx context.Context, id string) (Usage, error) {
	ids, err := accounts.IDsByCompany(ctx, t.q, id)
	if err != nil {
		return Usage{}, err
	}
	n, err := records.CountByCompany(ctx, t.q, id)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Accounts: len(ids), Records: n}, nil
}

// Purge removes records before accounts so no row ever references a missing
// company.
func (t txQueries) Purge(ctx context.Context, id string) (Purged, error) {
	ids, err := accounts.IDsByCompany(ctx, t.q, id)
	if err != nil {
		return Purged{}, err
	}
	n, err := records.PurgeCompany(ctx, t.q, id)
	if err != nil {
		return Purged{}, err
	}
	if _, err := accounts.PurgeCompany(ctx, t.q, id); err != nil {
		return Purged{}, err
	}
	return Purged{AccountIDs: ids, Records: n}, nil
}

func (t txQueries) Delete(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return shared.StorageError(fmt.Errorf("companies: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanCompany(row pgx.Row) (domain.Company, error) {
	var c domain.Company
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Company{}, shared.ErrNotFound
		}
		return domain.Company{}, shared.StorageError(fmt.Errorf("companies: scan: %w", err))
	}
	return c, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
