package records

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/shared"
)

// Gate is the only way callers reach record storage. It asks the policy
// engine first and then scopes every query to the caller's company, so an
// Allow can never surface another tenant's rows.
type Gate struct {
	repo     RepositoryPort
	enforcer *rbac.Enforcer
	audit    shared.Auditor
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate constructs a Gate. audit may be nil.
func NewGate(repo RepositoryPort, enforcer *rbac.Enforcer, audit shared.Auditor, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		repo:     repo,
		enforcer: enforcer,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns the records sess may see. The sequence is lazy: nothing is
// read until it is ranged over, and every range re-runs the query. Storage
// failures arrive as the final element.
//
// user and staff sessions only ever see search results, so an empty term
// yields an empty sequence for them.
func (g *Gate) List(ctx context.Context, sess *domain.Session, term string) (iter.Seq2[rbac.View, error], error) {
	if err := g.enforcer.CheckEligible(ctx, sess, rbac.ListRecords); err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if term == "" && rbac.SearchRequired(sess.Role) {
		return func(func(rbac.View, error) bool) {}, nil
	}

	viewer := *sess
	companyID := viewer.CompanyID
	return func(yield func(rbac.View, error) bool) {
		m := newMatcher(term)
		stopped := false
		err := g.repo.Each(ctx, companyID, func(rec domain.Record) bool {
			if rec.CompanyID != companyID {
				g.logger.ErrorContext(ctx, "records: store returned foreign row",
					slog.String("record_id", rec.ID), slog.String("company_id", companyID))
				return true
			}
			view := rbac.VisibleFields(&viewer, rec)
			if !m.matches(view.Fields) {
				return true
			}
			if !yield(view, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(rbac.View{}, shared.StorageError(err))
		}
	}, nil
}

// Collect drains a sequence returned by List.
func Collect(seq iter.Seq2[rbac.View, error]) ([]rbac.View, error) {
	out := []rbac.View{}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Create stores a new record. Creator and company always come from sess.
func (g *Gate) Create(ctx context.Context, sess *domain.Session, fields domain.Fields) (rbac.View, error) {
	if err := g.enforcer.CheckEligible(ctx, sess, rbac.CreateRecord); err != nil {
		return rbac.View{}, err
	}
	clean, err := businessFields(fields)
	if err != nil {
		return rbac.View{}, err
	}
	if len(clean) == 0 {
		return rbac.View{}, fmt.Errorf("%w: at least one business field is required", shared.ErrValidation)
	}
	now := g.now()
	saved, err := g.repo.Insert(ctx, domain.Record{
		CompanyID: sess.CompanyID,
		CreatedBy: sess.AccountID,
		Fields:    clean,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return rbac.View{}, err
	}
	g.record(ctx, sess, "record.create", saved.ID, map[string]any{"fields": clean.Keys()})
	return rbac.VisibleFields(sess, saved), nil
}

// Update replaces the supplied business fields of a record. Records outside
// the caller's company are reported as not found. Protected keys are dropped;
// a patch left empty returns the record unchanged.
func (g *Gate) Update(ctx context.Context, sess *domain.Session, id string, patch domain.Fields) (rbac.View, error) {
	existing, err := g.authorizeExisting(ctx, sess, rbac.EditRecord, id)
	if err != nil {
		return rbac.View{}, err
	}
	clean, err := businessFields(patch)
	if err != nil {
		return rbac.View{}, err
	}
	if len(clean) == 0 {
		return rbac.VisibleFields(sess, existing), nil
	}
	existing.Fields = existing.Fields.Merge(clean)
	existing.UpdatedAt = g.now()
	saved, err := g.repo.Update(ctx, existing)
	if err != nil {
		return rbac.View{}, err
	}
	g.record(ctx, sess, "record.update", saved.ID, map[string]any{"fields": clean.Keys(), "version": saved.Version})
	return rbac.VisibleFields(sess, saved), nil
}

// Delete removes a record. Same scoping rules as Update.
func (g *Gate) Delete(ctx context.Context, sess *domain.Session, id string) error {
	existing, err := g.authorizeExisting(ctx, sess, rbac.DeleteRecord, id)
	if err != nil {
		return err
	}
	if err := g.repo.Delete(ctx, existing.CompanyID, existing.ID); err != nil {
		return err
	}
	g.record(ctx, sess, "record.delete", existing.ID, nil)
	return nil
}

// BackfillCreatedBy attributes every creator-less record of companyID to
// accountID. It is a repair operation run by the background worker.
func (g *Gate) BackfillCreatedBy(ctx context.Context, companyID, accountID string) (int64, error) {
	if companyID == "" || accountID == "" {
		return 0, fmt.Errorf("%w: company and account are required", shared.ErrValidation)
	}
	n, err := g.repo.BackfillCreatedBy(ctx, companyID, accountID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.logger.InfoContext(ctx, "records: backfilled created_by",
			slog.String("company_id", companyID), slog.String("account_id", accountID), slog.Int64("rows", n))
	}
	return n, nil
}

// authorizeExisting runs the eligibility check, loads the record inside the
// caller's company and then checks the action against the real record.
func (g *Gate) authorizeExisting(ctx context.Context, sess *domain.Session, action rbac.Action, id string) (domain.Record, error) {
	if err := g.enforcer.CheckEligible(ctx, sess, action); err != nil {
		return domain.Record{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Record{}, shared.ErrNotFound
	}
	existing, err := g.repo.Get(ctx, sess.CompanyID, id)
	if err != nil {
		return domain.Record{}, err
	}
	if existing.CompanyID != sess.CompanyID {
		return domain.Record{}, shared.ErrNotFound
	}
	target := rbac.Target{CompanyID: existing.CompanyID, CreatedBy: existing.CreatedBy}
	if err := g.enforcer.Check(ctx, sess, action, target); err != nil {
		return domain.Record{}, err
	}
	return existing, nil
}

func (g *Gate) record(ctx context.Context, sess *domain.Session, action, id string, meta map[string]any) {
	if g.audit == nil {
		return
	}
	err := g.audit.Record(ctx, shared.AuditLog{
		ActorID:   sess.AccountID,
		CompanyID: sess.CompanyID,
		Action:    action,
		Entity:    "record",
		EntityID:  id,
		Meta:      meta,
		At:        g.now(),
	})
	if err != nil {
		g.logger.WarnContext(ctx, "records: audit", slog.String("action", action), slog.Any("error", err))
	}
}

// businessFields strips reserved keys and rejects blank names.
func businessFields(in domain.Fields) (domain.Fields, error) {
	clean := in.Sanitize()
	for _, f := range clean {
		if strings.TrimSpace(f.Key) == "" {
			return nil, fmt.Errorf("%w: field names must not be blank", shared.ErrValidation)
		}
	}
	return clean, nil
}
