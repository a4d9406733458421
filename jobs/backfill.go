package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/console/internal/domain"
	jobmetrics "github.com/odyssey-erp/console/internal/jobs"
	"github.com/odyssey-erp/console/internal/shared"
)

// RecordRepairer assigns creator-less records to an account.
type RecordRepairer interface {
	BackfillCreatedBy(ctx context.Context, companyID, accountID string) (int64, error)
}

// CompanyLister enumerates companies.
type CompanyLister interface {
	List(ctx context.Context) ([]domain.Company, error)
}

// AdminFinder resolves the account repaired records are attributed to.
type AdminFinder interface {
	EarliestSuperadmin(ctx context.Context, companyID string) (domain.Account, error)
}

// BackfillJob repairs records that lost or never had a creator.
type BackfillJob struct {
	Records   RecordRepairer
	Companies CompanyLister
	Admins    AdminFinder
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewBackfillJob wires dependencies for the backfill handler.
func NewBackfillJob(records RecordRepairer, companies CompanyLister, admins AdminFinder, logger *slog.Logger, metrics *jobmetrics.Metrics) *BackfillJob {
	return &BackfillJob{Records: records, Companies: companies, Admins: admins, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBackfillCreatedBy tasks.
func (j *BackfillJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Records == nil || j.Admins == nil {
		return errors.New("backfill: handler not configured")
	}
	var payload BackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("backfill: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskBackfillCreatedBy)
	start := time.Now()
	logger := j.logger()
	if payload.CompanyID != "" {
		logger = logger.With(slog.String("company_id", payload.CompanyID))
	}
	logger.Info("starting created_by backfill")

	companies, err := j.targets(ctx, payload)
	if err != nil {
		logger.Error("load backfill companies", slog.Any("error", err))
		return tracker.End(retryable(ctx, err))
	}
	var total int64
	for _, companyID := range companies {
		n, err := j.repair(ctx, tracker, companyID)
		if err != nil {
			logger.Error("backfill company", slog.String("company_id", companyID), slog.Any("error", err))
			return tracker.End(retryable(ctx, err))
		}
		total += n
	}
	tracker.Affected(total)
	logger.Info("completed created_by backfill",
		slog.Int("companies", len(companies)), slog.Int64("rows", total), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *BackfillJob) targets(ctx context.Context, payload BackfillPayload) ([]string, error) {
	if payload.CompanyID != "" {
		return []string{payload.CompanyID}, nil
	}
	if j.Companies == nil {
		return nil, errors.New("backfill: company lister not configured")
	}
	list, err := j.Companies.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (j *BackfillJob) repair(ctx context.Context, tracker *jobmetrics.Tracker, companyID string) (int64, error) {
	admin, err := j.Admins.EarliestSuperadmin(ctx, companyID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			j.logger().Warn("backfill skipped: company has no superadmin", slog.String("company_id", companyID))
			tracker.Skipped()
			return 0, nil
		}
		return 0, err
	}
	return j.Records.BackfillCreatedBy(ctx, companyID, admin.ID)
}

// retryable marks err as final unless storage was unavailable or the worker
// is shutting down.
func retryable(ctx context.Context, err error) error {
	if shared.Retryable(err) || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

func (j *BackfillJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
