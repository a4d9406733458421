package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/console/jobs"
)

type stubEnqueuer struct {
	tasks  []*asynq.Task
	closed bool
}

func (s *stubEnqueuer) EnqueueBackfill(_ context.Context, payload jobs.BackfillPayload) (*asynq.TaskInfo, error) {
	task, err := jobs.NewBackfillTask(payload)
	if err != nil {
		return nil, err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error {
	s.closed = true
	return nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (s *stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s *stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func (s *stubInspector) Close() error { return nil }

func run(t *testing.T, c *JobsCLI, args ...string) (string, error) {
	t.Helper()
	cmd := NewJobsCommand(func() (*JobsCLI, error) { return c, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBackfillCommandEnqueuesTask(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, inspector: &stubInspector{}}

	out, err := run(t, c, "backfill", "--company", "8d0a3c36-6a55-4a8e-9d55-2a1f0e1c4b01")
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued records:backfill_created_by")
	require.Len(t, enq.tasks, 1)

	var payload jobs.BackfillPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "8d0a3c36-6a55-4a8e-9d55-2a1f0e1c4b01", payload.CompanyID)
	assert.True(t, enq.closed)
}

func TestBackfillCommandRejectsBadCompany(t *testing.T) {
	enq := &stubEnqueuer{}
	_, err := run(t, &JobsCLI{client: enq, inspector: &stubInspector{}}, "backfill", "--company", "acme")
	assert.Error(t, err)
	assert.Empty(t, enq.tasks)
}

func TestTriggerUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}}
	_, err := c.Trigger(context.Background(), "mail:send", "")
	assert.Error(t, err)

	var empty *JobsCLI
	_, err = empty.Trigger(context.Background(), jobs.TaskBackfillCreatedBy, "")
	assert.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	insp := &stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}}
	out, err := run(t, &JobsCLI{client: &stubEnqueuer{}, inspector: insp}, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "default")

	stats, err := (&JobsCLI{inspector: insp}).InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}, stats)
}

func TestScheduledCommand(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	insp := &stubInspector{scheduled: []*asynq.TaskInfo{{ID: "t1", Type: jobs.TaskBackfillCreatedBy, NextProcessAt: at}}}
	out, err := run(t, &JobsCLI{client: &stubEnqueuer{}, inspector: insp}, "scheduled")
	require.NoError(t, err)
	assert.Contains(t, out, "t1\trecords:backfill_created_by\t2026-01-02T03:00:00Z")

	insp.err = errors.New("redis down")
	_, err = run(t, &JobsCLI{client: &stubEnqueuer{}, inspector: insp}, "scheduled")
	assert.Error(t, err)
}
