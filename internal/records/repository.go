package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/platform/db"
	"github.com/odyssey-erp/console/internal/shared"
)

// RepositoryPort is the storage contract used by the Gate. Every method is
// scoped by company.
type RepositoryPort interface {
	Each(ctx context.Context, companyID string, yield func(domain.Record) bool) error
	Get(ctx context.Context, companyID, id string) (domain.Record, error)
	Insert(ctx context.Context, rec domain.Record) (domain.Record, error)
	Update(ctx context.Context, rec domain.Record) (domain.Record, error)
	Delete(ctx context.Context, companyID, id string) error
	BackfillCreatedBy(ctx context.Context, companyID, accountID string) (int64, error)
}

// Repository provides Postgres persistence for records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// columns selects a record plus its creator's display name. The join is
// scoped to the record's company so a foreign account never resolves.
func columns(alias string) string {
	return strings.NewReplacer("$t", alias).Replace(`$t.id::text, $t.company_id::text, COALESCE($t.created_by::text, ''),
	COALESCE(a.display_name, ''), $t.fields, $t.version, $t.created_at, $t.updated_at`)
}

func creatorJoin(alias string) string {
	return " LEFT JOIN accounts a ON a.id = " + alias + ".created_by AND a.company_id = " + alias + ".company_id"
}

// Each streams the company's records oldest first until yield returns false.
func (r *Repository) Each(ctx context.Context, companyID string, yield func(domain.Record) bool) error {
	if !validID(companyID) {
		return nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+columns("r")+` FROM records r`+creatorJoin("r")+`
WHERE r.company_id = $1 ORDER BY r.created_at, r.id`, companyID)
	if err != nil {
		return shared.StorageError(fmt.Errorf("records: list: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if !yield(rec) {
			return nil
		}
	}
	return shared.StorageError(rows.Err())
}

// Get loads one record within companyID.
func (r *Repository) Get(ctx context.Context, companyID, id string) (domain.Record, error) {
	if !validID(companyID) || !validID(id) {
		return domain.Record{}, shared.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+columns("r")+` FROM records r`+creatorJoin("r")+`
WHERE r.id = $1 AND r.company_id = $2`, id, companyID)
	return scanRecord(row)
}

// Insert stores a new record and returns it with generated identifiers.
func (r *Repository) Insert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return domain.Record{}, err
	}
	row := r.pool.QueryRow(ctx, `WITH ins AS (
	INSERT INTO records (company_id, created_by, fields, created_at, updated_at)
	VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
	RETURNING *
) SELECT `+columns("ins")+` FROM ins`+creatorJoin("ins"),
		rec.CompanyID, rec.CreatedBy, fields, rec.CreatedAt, rec.UpdatedAt)
	return scanRecord(row)
}

// Update replaces the business fields of an existing record and bumps its
// version. Ownership columns are never written.
func (r *Repository) Update(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if !validID(rec.CompanyID) || !validID(rec.ID) {
		return domain.Record{}, shared.ErrNotFound
	}
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return domain.Record{}, err
	}
	row := r.pool.QueryRow(ctx, `WITH upd AS (
	UPDATE records SET fields = $3, version = version + 1, updated_at = $4
	WHERE id = $1 AND company_id = $2
	RETURNING *
) SELECT `+columns("upd")+` FROM upd`+creatorJoin("upd"),
		rec.ID, rec.CompanyID, fields, rec.UpdatedAt)
	return scanRecord(row)
}

// Delete removes a record within companyID.
func (r *Repository) Delete(ctx context.Context, companyID, id string) error {
	if !validID(companyID) || !validID(id) {
		return shared.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM records WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return shared.StorageError(fmt.Errorf("records: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// BackfillCreatedBy assigns accountID to every record in the company that has
// no creator.
func (r *Repository) BackfillCreatedBy(ctx context.Context, companyID, accountID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE records SET created_by = $2, updated_at = now()
WHERE company_id = $1 AND created_by IS NULL`, companyID, accountID)
	if err != nil {
		return 0, shared.StorageError(fmt.Errorf("records: backfill created_by: %w", err))
	}
	return tag.RowsAffected(), nil
}

// CountByCompany counts a company's records using q, typically a transaction
// owned by the company registry.
func CountByCompany(ctx context.Context, q db.Querier, companyID string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM records WHERE company_id = $1`, companyID).Scan(&n); err != nil {
		return 0, shared.StorageError(fmt.Errorf("records: count: %w", err))
	}
	return n, nil
}

// PurgeCompany deletes every record of a company using q.
func PurgeCompany(ctx context.Context, q db.Querier, companyID string) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM records WHERE company_id = $1`, companyID)
	if err != nil {
		return 0, shared.StorageError(fmt.Errorf("records: purge company: %w", err))
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var rec domain.Record
	var raw []byte
	err := row.Scan(&rec.ID, &rec.CompanyID, &rec.CreatedBy, &rec.CreatorName, &raw, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, shared.ErrNotFound
		}
		return domain.Record{}, shared.StorageError(fmt.Errorf("records: scan: %w", err))
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return domain.Record{}, fmt.Errorf("records: decode fields of %s: %w", rec.ID, err)
	}
	rec.Fields = fields
	return rec, nil
}

// Fields are stored as an array of pairs because jsonb objects lose key order.
func encodeFields(f domain.Fields) ([]byte, error) {
	if f == nil {
		f = domain.Fields{}
	}
	return json.Marshal([]domain.Field(f))
}

func decodeFields(raw []byte) (domain.Fields, error) {
	if len(raw) == 0 {
		return domain.Fields{}, nil
	}
	var pairs []domain.Field
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, err
	}
	return domain.Fields(pairs), nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
