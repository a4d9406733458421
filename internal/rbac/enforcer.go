package rbac

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/console/internal/domain"
)

// DecisionObserver receives every evaluated decision, typically for metrics.
type DecisionObserver func(action Action, d Decision)

// Enforcer evaluates CanPerform and handles the side effects around it:
// denials are logged with their reason and every decision is observed.
// A nil Enforcer still enforces, silently.
type Enforcer struct {
	logger  *slog.Logger
	observe DecisionObserver
}

// NewEnforcer builds an Enforcer. Both arguments are optional.
func NewEnforcer(logger *slog.Logger, observe DecisionObserver) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{logger: logger, observe: observe}
}

// Check authorizes action against target and returns nil, ErrNotAuthenticated
// or ErrForbidden.
func (e *Enforcer) Check(ctx context.Context, sess *domain.Session, action Action, target Target) error {
	d := CanPerform(sess, action, target)
	e.record(ctx, sess, action, d)
	return d.Err()
}

// CheckEligible is Check against the caller's most favourable target.
func (e *Enforcer) CheckEligible(ctx context.Context, sess *domain.Session, action Action) error {
	d := Eligible(sess, action)
	e.record(ctx, sess, action, d)
	return d.Err()
}

func (e *Enforcer) record(ctx context.Context, sess *domain.Session, action Action, d Decision) {
	if e == nil {
		return
	}
	if e.observe != nil {
		e.observe(action, d)
	}
	if d.Allowed {
		return
	}
	attrs := []slog.Attr{
		slog.String("action", string(action)),
		slog.String("reason", string(d.Reason)),
	}
	if sess != nil {
		attrs = append(attrs,
			slog.String("account_id", sess.AccountID),
			slog.String("role", string(sess.Role)),
			slog.String("company_id", sess.CompanyID),
		)
	}
	e.logger.LogAttrs(ctx, slog.LevelWarn, "policy denied", attrs...)
}
