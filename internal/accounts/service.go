package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/shared"
)

// Hasher turns a plaintext password into a stored hash.
type Hasher interface {
	Hash(password string) (string, error)
}

// SessionRevoker drops every live session of an account.
type SessionRevoker interface {
	RevokeAccount(ctx context.Context, accountID string) (int, error)
}

// ServiceConfig collects the dependencies of Service.
type ServiceConfig struct {
	Repo     RepositoryPort
	Hasher   Hasher
	Sessions SessionRevoker
	Enforcer *rbac.Enforcer
	Audit    shared.Auditor
	Logger   *slog.Logger
	// AllowLastAdminRemoval turns off the guard that keeps one superadmin
	// per company.
	AllowLastAdminRemoval bool
}

// Service manages company accounts.
type Service struct {
	repo                  RepositoryPort
	hasher                Hasher
	sessions              SessionRevoker
	enforcer              *rbac.Enforcer
	audit                 shared.Auditor
	logger                *slog.Logger
	validate              *validator.Validate
	allowLastAdminRemoval bool
	now                   func() time.Time
}

// NewService builds Service instance.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:                  cfg.Repo,
		hasher:                cfg.Hasher,
		sessions:              cfg.Sessions,
		enforcer:              cfg.Enforcer,
		audit:                 cfg.Audit,
		logger:                logger,
		validate:              validator.New(),
		allowLastAdminRemoval: cfg.AllowLastAdminRemoval,
		now:                   func() time.Time { return time.Now().UTC() },
	}
}

// ListAccounts returns the accounts of the caller's company.
func (s *Service) ListAccounts(ctx context.Context, sess *domain.Session) ([]domain.Account, error) {
	if err := s.enforcer.CheckEligible(ctx, sess, rbac.ListUsers); err != nil {
		return nil, err
	}
	return s.repo.ListByCompany(ctx, sess.CompanyID)
}

// CreateAccount adds an account to the caller's company.
func (s *Service) CreateAccount(ctx context.Context, sess *domain.Session, in NewAccount) (domain.Account, error) {
	if err := s.enforcer.CheckEligible(ctx, sess, rbac.CreateUser); err != nil {
		return domain.Account{}, err
	}
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return domain.Account{}, shared.ValidationError(err)
	}
	if err := grantable(in.Role); err != nil {
		return domain.Account{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	now := s.now()
	created, err := s.repo.Create(ctx, domain.Account{
		CompanyID:    sess.CompanyID,
		DisplayName:  in.DisplayName,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.Account{}, err
	}
	s.record(ctx, sess, "account.create", created.ID, map[string]any{"role": created.Role})
	return created, nil
}

// UpdateAccount applies patch to an account of the caller's company. Role,
// username and password changes end the account's live sessions.
func (s *Service) UpdateAccount(ctx context.Context, sess *domain.Session, id string, patch Patch) (domain.Account, error) {
	if err := s.enforcer.CheckEligible(ctx, sess, rbac.EditUser); err != nil {
		return domain.Account{}, err
	}
	patch = normalizePatch(patch)
	if patch.empty() {
		return domain.Account{}, fmt.Errorf("%w: nothing to update", shared.ErrValidation)
	}
	if err := s.validate.Struct(patch); err != nil {
		return domain.Account{}, shared.ValidationError(err)
	}
	if blank(patch.DisplayName) || blank(patch.Username) || blank(patch.Password) {
		return domain.Account{}, fmt.Errorf("%w: supplied fields must not be blank", shared.ErrValidation)
	}
	if patch.Role != nil {
		if err := grantable(*patch.Role); err != nil {
			return domain.Account{}, err
		}
	}
	var hash string
	if patch.Password != nil {
		var err error
		if hash, err = s.hasher.Hash(*patch.Password); err != nil {
			return domain.Account{}, fmt.Errorf("accounts: hash password: %w", err)
		}
	}

	var updated domain.Account
	var credentialsChanged bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadForChange(ctx, tx, sess, rbac.EditUser, id)
		if err != nil {
			return err
		}
		next := current
		if patch.DisplayName != nil {
			next.DisplayName = *patch.DisplayName
		}
		if patch.Username != nil {
			next.Username = *patch.Username
		}
		if patch.Role != nil {
			next.Role = *patch.Role
		}
		if hash != "" {
			next.PasswordHash = hash
		}
		if current.Role == domain.RoleSuperadmin && next.Role != domain.RoleSuperadmin {
			if err := s.guardLastAdmin(ctx, tx, current.CompanyID); err != nil {
				return err
			}
		}
		next.UpdatedAt = s.now()
		if updated, err = tx.Update(ctx, next); err != nil {
			return err
		}
		credentialsChanged = next.Role != current.Role || next.Username != current.Username || hash != ""
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	s.record(ctx, sess, "account.update", updated.ID, map[string]any{"role": updated.Role})
	if credentialsChanged {
		if err := s.revoke(ctx, updated.ID); err != nil {
			return domain.Account{}, err
		}
	}
	return updated, nil
}

// DeleteAccount removes an account of the caller's company. Records the
// account created are kept.
func (s *Service) DeleteAccount(ctx context.Context, sess *domain.Session, id string) error {
	if err := s.enforcer.CheckEligible(ctx, sess, rbac.DeleteUser); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadForChange(ctx, tx, sess, rbac.DeleteUser, id)
		if err != nil {
			return err
		}
		if current.Role == domain.RoleSuperadmin {
			if err := s.guardLastAdmin(ctx, tx, current.CompanyID); err != nil {
				return err
			}
		}
		return tx.Delete(ctx, current.CompanyID, current.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, sess, "account.delete", id, nil)
	return s.revoke(ctx, id)
}

func (s *Service) loadForChange(ctx context.Context, tx TxRepository, sess *domain.Session, action rbac.Action, id string) (domain.Account, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Account{}, shared.ErrNotFound
	}
	current, err := tx.Get(ctx, sess.CompanyID, id)
	if err != nil {
		return domain.Account{}, err
	}
	if current.CompanyID != sess.CompanyID {
		return domain.Account{}, shared.ErrNotFound
	}
	if err := s.enforcer.Check(ctx, sess, action, rbac.Target{CompanyID: current.CompanyID}); err != nil {
		return domain.Account{}, err
	}
	return current, nil
}

func (s *Service) guardLastAdmin(ctx context.Context, tx TxRepository, companyID string) error {
	if s.allowLastAdminRemoval {
		return nil
	}
	n, err := tx.CountSuperadmins(ctx, companyID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return shared.ErrLastAdminRemoval
	}
	return nil
}

// revoke ends the account's sessions. The change is already committed when
// this fails, so the caller sees ErrStorageUnavailable and may retry.
func (s *Service) revoke(ctx context.Context, accountID string) error {
	if s.sessions == nil {
		return nil
	}
	n, err := s.sessions.RevokeAccount(ctx, accountID)
	if err != nil {
		s.logger.ErrorContext(ctx, "accounts: revoke sessions", slog.String("account_id", accountID), slog.Any("error", err))
		if errors.Is(err, shared.ErrStorageUnavailable) {
			return fmt.Errorf("accounts: revoke sessions: %w", err)
		}
		return fmt.Errorf("accounts: revoke sessions: %w: %w", shared.ErrStorageUnavailable, err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "accounts: sessions revoked", slog.String("account_id", accountID), slog.Int("sessions", n))
	}
	return nil
}

func (s *Service) record(ctx context.Context, sess *domain.Session, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   sess.AccountID,
		CompanyID: sess.CompanyID,
		Action:    action,
		Entity:    "account",
		EntityID:  id,
		Meta:      meta,
		At:        s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "accounts: audit", slog.String("action", action), slog.Any("error", err))
	}
}

// grantable reports whether a superadmin may hand out role.
func grantable(role domain.Role) error {
	switch role {
	case domain.RoleUser, domain.RoleStaff, domain.RoleSuperadmin:
		return nil
	case domain.RoleMainadmin:
		return shared.ErrForbidden
	}
	return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, role)
}

func normalizePatch(p Patch) Patch {
	if p.DisplayName != nil {
		v := strings.TrimSpace(*p.DisplayName)
		p.DisplayName = &v
	}
	if p.Username != nil {
		v := strings.TrimSpace(*p.Username)
		p.Username = &v
	}
	return p
}

func blank(v *string) bool {
	return v != nil && *v == ""
}
