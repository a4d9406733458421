package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/console/internal/accounts"
	"github.com/odyssey-erp/console/internal/auth"
	"github.com/odyssey-erp/console/internal/companies"
	"github.com/odyssey-erp/console/internal/observability"
	"github.com/odyssey-erp/console/internal/rbac"
	"github.com/odyssey-erp/console/internal/records"
	"github.com/odyssey-erp/console/internal/shared"
	"github.com/odyssey-erp/console/jobs"
)

// Dependencies are the process-wide resources the console is built from.
type Dependencies struct {
	Config    *Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Inspector *asynq.Inspector
	Metrics   *observability.Metrics
}

// Console holds the wired services and the HTTP router.
type Console struct {
	Router    http.Handler
	Sessions  *shared.SessionStore
	Auth      *auth.Service
	Accounts  *accounts.Service
	Companies *companies.Service
	Records   *records.Gate
}

// Build wires every service on top of deps.
func Build(deps Dependencies) (*Console, error) {
	if deps.Config == nil || deps.Pool == nil || deps.Redis == nil {
		return nil, errors.New("app: config, postgres pool and redis client are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	enforcer := rbac.NewEnforcer(logger, deps.Metrics.ObserveDecision)
	rbacMiddleware := rbac.Middleware{Enforcer: enforcer, Logger: logger}
	auditLogger := shared.NewAuditLogger(deps.Pool)
	sessions := shared.NewSessionStore(deps.Redis, cfg.SessionTTL)
	hasher := auth.BcryptHasher{Cost: cfg.BcryptCost}

	accountRepo := accounts.NewRepository(deps.Pool)
	authService := auth.NewService(accountRepo, sessions, hasher, logger)
	accountService := accounts.NewService(accounts.ServiceConfig{
		Repo:                  accountRepo,
		Hasher:                hasher,
		Sessions:              sessions,
		Enforcer:              enforcer,
		Audit:                 auditLogger,
		Logger:                logger,
		AllowLastAdminRemoval: cfg.AllowLastAdminRemoval,
	})
	companyService := companies.NewService(companies.ServiceConfig{
		Repo:         companies.NewRepository(deps.Pool),
		Hasher:       hasher,
		Sessions:     sessions,
		Enforcer:     enforcer,
		Audit:        auditLogger,
		Logger:       logger,
		DirectoryTTL: cfg.DirectoryCacheTTL,
	})
	gate := records.NewGate(records.NewRepository(deps.Pool), enforcer, auditLogger, logger)

	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, authService, rbacMiddleware),
		CompaniesHandler:   companies.NewHandler(logger, companyService, rbacMiddleware),
		AccountsHandler:    accounts.NewHandler(logger, accountService, rbacMiddleware),
		RecordsHandler:     records.NewHandler(logger, gate, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		JobHandler:         jobs.NewHandler(deps.Inspector, logger),
		Metrics:            deps.Metrics,
		Ping: func(ctx context.Context) error {
			if err := deps.Pool.Ping(ctx); err != nil {
				return err
			}
			return deps.Redis.Ping(ctx).Err()
		},
	})

	return &Console{
		Router:    router,
		Sessions:  sessions,
		Auth:      authService,
		Accounts:  accountService,
		Companies: companyService,
		Records:   gate,
	}, nil
}
