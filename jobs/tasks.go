package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBackfillCreatedBy attributes creator-less records to a superadmin.
	TaskBackfillCreatedBy = "records:backfill_created_by"
	// BackfillCronSpec schedules the daily repair run.
	BackfillCronSpec = "0 3 * * *"
)

// BackfillPayload selects the company to repair. An empty CompanyID repairs
// every company.
type BackfillPayload struct {
	CompanyID string `json:"company_id,omitempty"`
}

// Validate reports malformed payloads.
func (p BackfillPayload) Validate() error {
	if p.CompanyID == "" {
		return nil
	}
	if _, err := uuid.Parse(p.CompanyID); err != nil {
		return fmt.Errorf("backfill: invalid company id %q", p.CompanyID)
	}
	return nil
}

// NewBackfillTask constructs an Asynq task.
func NewBackfillTask(payload BackfillPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackfillCreatedBy, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
