package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions Sessions
	hasher   PasswordHasher
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time

	// dummyHash is compared against when no account matches, so unknown
	// usernames cost the same as wrong passwords.
	dummyHash func() (string, error)
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions Sessions, hasher PasswordHasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		sessions:  sessions,
		hasher:    hasher,
		logger:    logger,
		validate:  validator.New(),
		now:       time.Now,
		dummyHash: sync.OnceValues(func() (string, error) { return hasher.Hash(uuid.NewString()) }),
	}
}

// Authenticate checks credentials and opens a session.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (LoginResult, error) {
	creds.CompanyID = strings.TrimSpace(creds.CompanyID)
	creds.Username = strings.TrimSpace(creds.Username)
	if err := s.validate.Struct(creds); err != nil {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if creds.CompanyID != "" {
		id, err := uuid.Parse(creds.CompanyID)
		if err != nil {
			return LoginResult{}, shared.ErrInvalidCredentials
		}
		creds.CompanyID = id.String()
	}
	acct, err := s.repo.FindByUsername(ctx, creds.CompanyID, creds.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.burnCompare(creds.Password)
			return LoginResult{}, shared.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if acct.CompanyID != creds.CompanyID || !acct.Role.Valid() {
		s.burnCompare(creds.Password)
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	ok, err := s.hasher.Compare(acct.PasswordHash, creds.Password)
	if err != nil {
		s.logger.WarnContext(ctx, "auth: stored hash unreadable", slog.String("account_id", acct.ID), slog.Any("error", err))
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if !ok {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	sess, err := s.sessions.Issue(ctx, acct)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     sess.Token,
		ExpiresAt: s.now().Add(s.sessions.TTL()).UTC(),
		AccountID: sess.AccountID,
		Role:      sess.Role,
		CompanyID: sess.CompanyID,
	}, nil
}

// Authorize resolves a bearer token into the session it was issued for. The
// account must still exist with the role and company the session carries;
// otherwise the token is dropped.
func (s *Service) Authorize(ctx context.Context, token string) (domain.Session, error) {
	token = strings.TrimSpace(token)
	sess, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return domain.Session{}, err
	}
	acct, err := s.repo.GetByID(ctx, sess.AccountID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
	case err != nil:
		return domain.Session{}, err
	case acct.Role == sess.Role && acct.CompanyID == sess.CompanyID:
		return sess, nil
	}
	s.logger.InfoContext(ctx, "auth: stale session dropped", slog.String("account_id", sess.AccountID))
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "auth: drop stale session", slog.Any("error", err))
	}
	return domain.Session{}, shared.ErrNotAuthenticated
}

// Logout ends the session identified by token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// ChangePassword replaces the caller's own password. Every session of the
// account, the current one included, is ended.
func (s *Service) ChangePassword(ctx context.Context, sess *domain.Session, change PasswordChange) error {
	if !sess.Authenticated() {
		return shared.ErrNotAuthenticated
	}
	if err := s.validate.Struct(change); err != nil {
		return shared.ValidationError(err)
	}
	acct, err := s.repo.GetByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotAuthenticated
		}
		return err
	}
	ok, err := s.hasher.Compare(acct.PasswordHash, change.Current)
	if err != nil || !ok {
		return shared.ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(change.Next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAccount(ctx, acct.ID); err != nil {
		return fmt.Errorf("auth: revoke after password change: %w", err)
	}
	return nil
}

func (s *Service) burnCompare(password string) {
	hash, err := s.dummyHash()
	if err != nil {
		return
	}
	_, _ = s.hasher.Compare(hash, password)
}
