package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/shared"
)

const (
	companyA = "8d0a3c36-6a55-4a8e-9d55-2a1f0e1c4b01"
	companyB = "0f6f0d52-51c4-4dc7-8f0c-6a3f2b7f9c02"
)

type stubRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

func newStubRepo(t *testing.T, accts ...domain.Account) *stubRepo {
	t.Helper()
	r := &stubRepo{accounts: map[string]domain.Account{}}
	for _, acct := range accts {
		r.accounts[acct.ID] = acct
	}
	return r
}

func (r *stubRepo) FindByUsername(_ context.Context, companyID, username string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acct := range r.accounts {
		if acct.CompanyID == companyID && acct.Username == username {
			return acct, nil
		}
	}
	return domain.Account{}, shared.ErrNotFound
}

func (r *stubRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, shared.ErrNotFound
	}
	return acct, nil
}

func (r *stubRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	acct.PasswordHash = hash
	r.accounts[id] = acct
	return nil
}

var testHasher = BcryptHasher{Cost: bcrypt.MinCost}

type countingHasher struct {
	BcryptHasher
	mu       sync.Mutex
	compares int
}

func (h *countingHasher) Compare(hash, password string) (bool, error) {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	return h.BcryptHasher.Compare(hash, password)
}

func account(t *testing.T, id, company, username, password string, role domain.Role) domain.Account {
	t.Helper()
	hash, err := testHasher.Hash(password)
	require.NoError(t, err)
	return domain.Account{ID: id, CompanyID: company, Username: username, PasswordHash: hash, Role: role}
}

func newTestService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, shared.NewSessionStore(client, time.Hour), testHasher, nil), mr
}

func TestAuthenticateScopesUsernameToCompany(t *testing.T) {
	repo := newStubRepo(t,
		account(t, "a1", companyA, "alice", "pw-a", domain.RoleSuperadmin),
		account(t, "b1", companyB, "alice", "pw-b", domain.RoleUser),
	)
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	res, err := svc.Authenticate(ctx, Credentials{CompanyID: companyB, Username: "alice", Password: "pw-b"})
	require.NoError(t, err)
	assert.Equal(t, "b1", res.AccountID)
	assert.Equal(t, domain.RoleUser, res.Role)
	assert.NotEmpty(t, res.Token)

	_, err = svc.Authenticate(ctx, Credentials{CompanyID: companyB, Username: "alice", Password: "pw-a"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateMainadminUsesGlobalScope(t *testing.T) {
	repo := newStubRepo(t, account(t, "m1", "", "root", "pw", domain.RoleMainadmin))
	svc, _ := newTestService(t, repo)

	res, err := svc.Authenticate(context.Background(), Credentials{Username: "root", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMainadmin, res.Role)
	assert.Empty(t, res.CompanyID)

	_, err = svc.Authenticate(context.Background(), Credentials{CompanyID: companyA, Username: "root", Password: "pw"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateFailures(t *testing.T) {
	repo := newStubRepo(t, account(t, "a1", companyA, "alice", "pw", domain.RoleStaff))
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	for name, creds := range map[string]Credentials{
		"unknown user":   {CompanyID: companyA, Username: "bob", Password: "pw"},
		"wrong password": {CompanyID: companyA, Username: "alice", Password: "nope"},
		"bad company id": {CompanyID: "acme", Username: "alice", Password: "pw"},
		"blank username": {CompanyID: companyA, Username: " ", Password: "pw"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, creds)
			assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		})
	}
}

func TestAuthenticateAcceptsUppercaseCompanyID(t *testing.T) {
	repo := newStubRepo(t, account(t, "a1", companyA, "alice", "pw", domain.RoleStaff))
	svc, _ := newTestService(t, repo)

	res, err := svc.Authenticate(context.Background(), Credentials{CompanyID: strings.ToUpper(companyA), Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, companyA, res.CompanyID)
}

func TestAuthenticateComparesEvenForUnknownUsername(t *testing.T) {
	repo := newStubRepo(t, account(t, "a1", companyA, "alice", "pw", domain.RoleStaff))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hasher := &countingHasher{BcryptHasher: testHasher}
	svc := NewService(repo, shared.NewSessionStore(client, time.Hour), hasher, nil)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "nobody", Password: "pw"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, 1, hasher.compares)

	_, err = svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, 2, hasher.compares)
}

func TestAuthorizeDropsStaleSessions(t *testing.T) {
	repo := newStubRepo(t,
		account(t, "a1", companyA, "alice", "pw", domain.RoleSuperadmin),
		account(t, "b1", companyA, "bob", "pw", domain.RoleStaff),
	)
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	alice, err := svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "alice", Password: "pw"})
	require.NoError(t, err)
	bob, err := svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "bob", Password: "pw"})
	require.NoError(t, err)

	// Role and membership changed behind the session store's back.
	repo.mu.Lock()
	demoted := repo.accounts["a1"]
	demoted.Role = domain.RoleUser
	repo.accounts["a1"] = demoted
	delete(repo.accounts, "b1")
	repo.mu.Unlock()

	_, err = svc.Authorize(ctx, alice.Token)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	_, err = svc.Authorize(ctx, bob.Token)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)

	// The stale token is gone even though the account is restored.
	repo.mu.Lock()
	repo.accounts["a1"] = domain.Account{ID: "a1", CompanyID: companyA, Username: "alice", Role: domain.RoleSuperadmin}
	repo.mu.Unlock()
	_, err = svc.Authorize(ctx, alice.Token)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestAuthorizeAndLogout(t *testing.T) {
	repo := newStubRepo(t, account(t, "a1", companyA, "alice", "pw", domain.RoleStaff))
	svc, mr := newTestService(t, repo)
	ctx := context.Background()

	res, err := svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "alice", Password: "pw"})
	require.NoError(t, err)

	sess, err := svc.Authorize(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.Session{AccountID: "a1", Role: domain.RoleStaff, CompanyID: companyA, Token: res.Token}, sess)

	require.NoError(t, svc.Logout(ctx, res.Token))
	_, err = svc.Authorize(ctx, res.Token)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)

	res, err = svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "alice", Password: "pw"})
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	_, err = svc.Authorize(ctx, res.Token)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newStubRepo(t, account(t, "a1", companyA, "alice", "old-password", domain.RoleUser))
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	res, err := svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "alice", Password: "old-password"})
	require.NoError(t, err)
	sess, err := svc.Authorize(ctx, res.Token)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, &sess, PasswordChange{Current: "wrong", Next: "new-password"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, &sess, PasswordChange{Current: "old-password", Next: "new-password"}))
	_, err = svc.Authorize(ctx, res.Token)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)

	_, err = svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "alice", Password: "old-password"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, Credentials{CompanyID: companyA, Username: "alice", Password: "new-password"})
	assert.NoError(t, err)
}

func TestChangePasswordValidation(t *testing.T) {
	repo := newStubRepo(t, account(t, "a1", companyA, "alice", "old-password", domain.RoleUser))
	svc, _ := newTestService(t, repo)
	sess := &domain.Session{AccountID: "a1", Role: domain.RoleUser, CompanyID: companyA}

	assert.ErrorIs(t, svc.ChangePassword(context.Background(), nil, PasswordChange{}), shared.ErrNotAuthenticated)
	assert.ErrorIs(t, svc.ChangePassword(context.Background(), sess, PasswordChange{Current: "old-password", Next: "short"}), shared.ErrValidation)
}

func TestBcryptHasher(t *testing.T) {
	hash, err := testHasher.Hash("secret")
	require.NoError(t, err)
	ok, err := testHasher.Compare(hash, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = testHasher.Compare(hash, "other")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = testHasher.Compare("not-a-hash", "secret")
	assert.Error(t, err)
}
