package e2e

import (
	"context"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/console/internal/accounts"
	"github.com/odyssey-erp/console/internal/auth"
	"github.com/odyssey-erp/console/internal/companies"
	"github.com/odyssey-erp/console/internal/domain"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/shared"
)

// ============================================================================
// In-memory store shared by the company, account and auth services
// ============================================================================

type memStore struct {
	mu        sync.Mutex
	companies map[string]domain.Company
	accounts  map[string]domain.Account
}

func newMemStore() *memStore {
	return &memStore{companies: map[string]domain.Company{}, accounts: map[string]domain.Account{}}
}

func (m *memStore) insertAccount(acct domain.Account) (domain.Account, error) {
	for _, other := range m.accounts {
		if other.CompanyID == acct.CompanyID && other.Username == acct.Username {
			return domain.Account{}, shared.ErrDuplicateUsername
		}
	}
	acct.ID = uuid.NewString()
	m.accounts[acct.ID] = acct
	return acct, nil
}

func (m *memStore) FindByUsername(_ context.Context, companyID, username string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acct := range m.accounts {
		if acct.CompanyID == companyID && acct.Username == username {
			return acct, nil
		}
	}
	return domain.Account{}, shared.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, shared.ErrNotFound
	}
	return acct, nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	acct.PasswordHash = hash
	m.accounts[id] = acct
	return nil
}

// withTx holds the lock for the whole callback and restores both maps when
// it fails.
func (m *memStore) withTx(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	companiesBefore, accountsBefore := maps.Clone(m.companies), maps.Clone(m.accounts)
	if err := fn(); err != nil {
		m.companies, m.accounts = companiesBefore, accountsBefore
		return err
	}
	return nil
}

type companyRepo struct{ *memStore }

func (r companyRepo) List(context.Context) ([]domain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Collect(maps.Values(r.companies))
	slices.SortFunc(out, func(a, b domain.Company) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, nil
}

func (r companyRepo) Rename(_ context.Context, id, name string) (domain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return domain.Company{}, shared.ErrNotFound
	}
	c.Name = name
	r.companies[id] = c
	return c, nil
}

func (r companyRepo) WithTx(ctx context.Context, fn func(context.Context, companies.TxRepository) error) error {
	return r.withTx(func() error { return fn(ctx, companyTx(r)) })
}

type companyTx struct{ *memStore }

func (t companyTx) Insert(_ context.Context, name string, at time.Time) (domain.Company, error) {
	c := domain.Company{ID: uuid.NewString(), Name: name, CreatedAt: at}
	t.companies[c.ID] = c
	return c, nil
}

func (t companyTx) InsertAccount(_ context.Context, acct domain.Account) (domain.Account, error) {
	return t.insertAccount(acct)
}

func (t companyTx) Lock(_ context.Context, id string) (domain.Company, error) {
	c, ok := t.companies[id]
	if !ok {
		return domain.Company{}, shared.ErrNotFound
	}
	return c, nil
}

func (t companyTx) Usage(_ context.Context, id string) (companies.Usage, error) {
	var u companies.Usage
	for _, acct := range t.accounts {
		if acct.CompanyID == id {
			u.Accounts++
		}
	}
	return u, nil
}

func (t companyTx) Purge(_ context.Context, id string) (companies.Purged, error) {
	var p companies.Purged
	for accountID, acct := range t.accounts {
		if acct.CompanyID == id {
			p.AccountIDs = append(p.AccountIDs, accountID)
			delete(t.accounts, accountID)
		}
	}
	return p, nil
}

func (t companyTx) Delete(_ context.Context, id string) error {
	if _, ok := t.companies[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.companies, id)
	return nil
}

type accountRepo struct{ *memStore }

func (r accountRepo) Create(_ context.Context, acct domain.Account) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertAccount(acct)
}

func (r accountRepo) Get(_ context.Context, companyID, id string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return accountTx(r).Get(context.Background(), companyID, id)
}

func (r accountRepo) ListByCompany(_ context.Context, companyID string) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Account{}
	for _, acct := range r.accounts {
		if acct.CompanyID == companyID {
			out = append(out, acct)
		}
	}
	slices.SortFunc(out, func(a, b domain.Account) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r accountRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.withTx(func() error { return fn(ctx, accountTx(r)) })
}

type accountTx struct{ *memStore }

func (t accountTx) Get(_ context.Context, companyID, id string) (domain.Account, error) {
	acct, ok := t.accounts[id]
	if !ok || acct.CompanyID != companyID {
		return domain.Account{}, shared.ErrNotFound
	}
	return acct, nil
}

func (t accountTx) CountSuperadmins(_ context.Context, companyID string) (int, error) {
	n := 0
	for _, acct := range t.accounts {
		if acct.CompanyID == companyID && acct.Role == domain.RoleSuperadmin {
			n++
		}
	}
	return n, nil
}

func (t accountTx) Update(_ context.Context, acct domain.Account) (domain.Account, error) {
	if _, ok := t.accounts[acct.ID]; !ok {
		return domain.Account{}, shared.ErrNotFound
	}
	t.accounts[acct.ID] = acct
	return acct, nil
}

func (t accountTx) Delete(_ context.Context, companyID, id string) error {
	if _, err := t.Get(context.Background(), companyID, id); err != nil {
		return err
	}
	delete(t.accounts, id)
	return nil
}

// ============================================================================
// Scenario
// ============================================================================

type services struct {
	auth      *auth.Service
	accounts  *accounts.Service
	companies *companies.Service
}

func newServices(t *testing.T, store *memStore) services {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sessions := shared.NewSessionStore(rdb, time.Hour)
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	enforcer := rbac.NewEnforcer(nil, nil)
	return services{
		auth: auth.NewService(store, sessions, hasher, nil),
		accounts: accounts.NewService(accounts.ServiceConfig{
			Repo: accountRepo{store}, Hasher: hasher, Sessions: sessions, Enforcer: enforcer,
		}),
		companies: companies.NewService(companies.ServiceConfig{
			Repo: companyRepo{store}, Hasher: hasher, Sessions: sessions, Enforcer: enforcer,
		}),
	}
}

func login(t *testing.T, svc services, creds auth.Credentials) *domain.Session {
	t.Helper()
	ctx := context.Background()
	res, err := svc.auth.Authenticate(ctx, creds)
	require.NoError(t, err, "login %s", creds.Username)
	sess, err := svc.auth.Authorize(ctx, res.Token)
	require.NoError(t, err)
	return &sess
}

func TestProvisionedAdminLogsInAndSeesOnlyThemselves(t *testing.T) {
	store := newMemStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("root-password"), bcrypt.MinCost)
	require.NoError(t, err)
	store.accounts["root"] = domain.Account{ID: "root", Username: "root", PasswordHash: string(hash), Role: domain.RoleMainadmin}
	svc := newServices(t, store)
	ctx := context.Background()

	root := login(t, svc, auth.Credentials{Username: "root", Password: "root-password"})

	acme, err := svc.companies.CreateCompany(ctx, root, companies.NewCompany{
		Name:  "Acme",
		Admin: companies.AdminSeed{DisplayName: "Alice", Username: "alice", Password: "acme-password"},
	})
	require.NoError(t, err)
	_, err = svc.companies.CreateCompany(ctx, root, companies.NewCompany{
		Name:  "Globex",
		Admin: companies.AdminSeed{DisplayName: "Alice G.", Username: "alice", Password: "globex-password"},
	})
	require.NoError(t, err, "usernames are unique per company only")

	alice := login(t, svc, auth.Credentials{CompanyID: acme.Company.ID, Username: "alice", Password: "acme-password"})
	assert.Equal(t, domain.RoleSuperadmin, alice.Role)
	assert.Equal(t, acme.Company.ID, alice.CompanyID)

	listed, err := svc.accounts.ListAccounts(ctx, alice)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, acme.Admin.ID, listed[0].ID)

	_, err = svc.auth.Authenticate(ctx, auth.Credentials{CompanyID: acme.Company.ID, Username: "alice", Password: "globex-password"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.accounts.ListAccounts(ctx, root)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCascadeDeleteEndsTenantSessions(t *testing.T) {
	store := newMemStore()
	svc := newServices(t, store)
	ctx := context.Background()
	root := &domain.Session{AccountID: "root", Role: domain.RoleMainadmin}

	acme, err := svc.companies.CreateCompany(ctx, root, companies.NewCompany{
		Name:  "Acme",
		Admin: companies.AdminSeed{DisplayName: "Alice", Username: "alice", Password: "acme-password"},
	})
	require.NoError(t, err)
	res, err := svc.auth.Authenticate(ctx, auth.Credentials{CompanyID: acme.Company.ID, Username: "alice", Password: "acme-password"})
	require.NoError(t, err)

	require.NoError(t, svc.companies.DeleteCompany(ctx, root, acme.Company.ID, companies.DeleteOptions{Cascade: true}))
	_, err = svc.auth.Authorize(ctx, res.Token)
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}
