package companies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/console/internal/accounts"
	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/shared"
)

const (
	directoryKey = "all"
	// directoryLoadTimeout bounds a shared directory load, which no single
	// caller's context may cancel.
	directoryLoadTimeout = 10 * time.Second
)

// ServiceConfig collects the dependencies of Service.
type ServiceConfig struct {
	Repo     RepositoryPort
	Hasher   accounts.Hasher
	Sessions accounts.SessionRevoker
	Enforcer *rbac.Enforcer
	Audit    shared.Auditor
	Logger   *slog.Logger
	// DirectoryTTL bounds how long ListCompanies may serve a cached result.
	// Zero disables the cache.
	DirectoryTTL time.Duration
}

// Service is the company registry.
type Service struct {
	repo     RepositoryPort
	hasher   accounts.Hasher
	sessions accounts.SessionRevoker
	enforcer *rbac.Enforcer
	audit    shared.Auditor
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time

	directory  *expirable.LRU[string, []domain.Company]
	generation atomic.Uint64
	loads      singleflight.Group
}

// NewService builds Service instance.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     cfg.Repo,
		hasher:   cfg.Hasher,
		sessions: cfg.Sessions,
		enforcer: cfg.Enforcer,
		audit:    cfg.Audit,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if cfg.DirectoryTTL > 0 {
		s.directory = expirable.NewLRU[string, []domain.Company](1, nil, cfg.DirectoryTTL)
	}
	return s
}

// CreateCompany creates a company together with its first superadmin. Either
// both rows are stored or neither is.
func (s *Service) CreateCompany(ctx context.Context, sess *domain.Session, in NewCompany) (Provisioned, error) {
	if err := s.enforcer.Check(ctx, sess, rbac.ManageCompany, rbac.Target{}); err != nil {
		return Provisioned{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Admin.DisplayName = strings.TrimSpace(in.Admin.DisplayName)
	in.Admin.Username = strings.TrimSpace(in.Admin.Username)
	if err := s.validate.Struct(in); err != nil {
		return Provisioned{}, shared.ValidationError(err)
	}
	hash, err := s.hasher.Hash(in.Admin.Password)
	if err != nil {
		return Provisioned{}, fmt.Errorf("companies: hash password: %w", err)
	}

	var out Provisioned
	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		company, err := tx.Insert(ctx, in.Name, now)
		if err != nil {
			return err
		}
		admin, err := tx.InsertAccount(ctx, domain.Account{
			CompanyID:    company.ID,
			DisplayName:  in.Admin.DisplayName,
			Username:     in.Admin.Username,
			PasswordHash: hash,
			Role:         domain.RoleSuperadmin,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		out = Provisioned{Company: company, Admin: admin}
		return nil
	})
	if err != nil {
		return Provisioned{}, err
	}
	s.invalidate()
	s.record(ctx, sess, "company.create", out.Company.ID, map[string]any{"admin_id": out.Admin.ID})
	return out, nil
}

// RenameCompany changes the name of a company.
func (s *Service) RenameCompany(ctx context.Context, sess *domain.Session, id, name string) (domain.Company, error) {
	if err := s.enforcer.Check(ctx, sess, rbac.ManageCompany, rbac.Target{CompanyID: id}); err != nil {
		return domain.Company{}, err
	}
	name = strings.TrimSpace(name)
	if err := s.validate.Var(name, "required,max=200"); err != nil {
		return domain.Company{}, fmt.Errorf("%w: name is required and at most 200 characters", shared.ErrValidation)
	}
	company, err := s.repo.Rename(ctx, id, name)
	if err != nil {
		return domain.Company{}, err
	}
	s.invalidate()
	s.record(ctx, sess, "company.rename", id, map[string]any{"name": name})
	return company, nil
}

// DeleteCompany removes a company. Without opts.Cascade it refuses while the
// company owns accounts or records; with it, records go first, then
// accounts, then the company, all in one transaction.
func (s *Service) DeleteCompany(ctx context.Context, sess *domain.Session, id string, opts DeleteOptions) error {
	if err := s.enforcer.Check(ctx, sess, rbac.ManageCompany, rbac.Target{CompanyID: id}); err != nil {
		return err
	}
	var purged Purged
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Lock(ctx, id); err != nil {
			return err
		}
		if opts.Cascade {
			var err error
			if purged, err = tx.Purge(ctx, id); err != nil {
				return err
			}
		} else {
			usage, err := tx.Usage(ctx, id)
			if err != nil {
				return err
			}
			if !usage.Empty() {
				return shared.ErrCompanyNotEmpty
			}
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate()
	s.record(ctx, sess, "company.delete", id, map[string]any{
		"cascade":  opts.Cascade,
		"accounts": len(purged.AccountIDs),
		"records":  purged.Records,
	})
	return s.revoke(ctx, purged.AccountIDs)
}

// ListCompanies is public; it backs the company picker on the login screen.
func (s *Service) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	if s.directory != nil {
		if cached, ok := s.directory.Get(directoryKey); ok {
			return clone(cached), nil
		}
	}
	loaded := s.loads.DoChan(directoryKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directoryLoadTimeout)
		defer cancel()
		gen := s.generation.Load()
		list, err := s.repo.List(loadCtx)
		if err != nil {
			return nil, err
		}
		if s.directory != nil && s.generation.Load() == gen {
			s.directory.Add(directoryKey, list)
		}
		return list, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-loaded:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]domain.Company)), nil
	}
}

// invalidate drops the cached directory; loads that started earlier will not
// repopulate it.
func (s *Service) invalidate() {
	s.generation.Add(1)
	if s.directory != nil {
		s.directory.Purge()
	}
	s.loads.Forget(directoryKey)
}

// revoke ends the sessions of purged accounts. The purge is already
// committed, so a failure is reported as ErrStorageUnavailable.
func (s *Service) revoke(ctx context.Context, accountIDs []string) error {
	if s.sessions == nil {
		return nil
	}
	var errs []error
	for _, accountID := range accountIDs {
		if _, err := s.sessions.RevokeAccount(ctx, accountID); err != nil {
			s.logger.ErrorContext(ctx, "companies: revoke sessions", slog.String("account_id", accountID), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("companies: revoke sessions: %w: %w", shared.ErrStorageUnavailable, errors.Join(errs...))
	}
	return nil
}

func (s *Service) record(ctx context.Context, sess *domain.Session, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  sess.AccountID,
		Action:   action,
		Entity:   "company",
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "companies: audit", slog.String("action", action), slog.Any("error", err))
	}
}

func clone(in []domain.Company) []domain.Company {
	return append([]domain.Company{}, in...)
}
