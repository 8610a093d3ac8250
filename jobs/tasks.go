package jobs

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	"github.com/rawdatain/backoffice/internal/audit"
	jobmetrics "github.com/rawdatain/backoffice/internal/jobs"
	"github.com/rawdatain/backoffice/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord persists an audit event emitted by a service.
	TaskAuditRecord = "audit:record"
	// TaskProfitRollup rolls saved segment periods up into monthly profits.
	TaskProfitRollup = "profit:rollup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

const monthLayout = "2006-01"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NewAuditRecordTask wraps evt into a task.
func NewAuditRecordTask(evt audit.Event) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, body, asynq.Queue(QueueDefault), asynq.MaxRetry(10)), nil
}

// ProfitRollupPayload selects the month to roll up. An empty month means the current and the
// previous month.
type ProfitRollupPayload struct {
	Month string `json:"month,omitempty"`
}

// NewProfitRollupTask creates a rollup task for month (YYYY-MM) or, when empty, the recent months.
func NewProfitRollupTask(month string) (*asynq.Task, error) {
	if month != "" {
		if _, err := time.Parse(monthLayout, month); err != nil {
			return nil, shared.FieldError("month", fmt.Sprintf("invalid month %q, expected YYYY-MM", month))
		}
	}
	body, err := json.Marshal(ProfitRollupPayload{Month: month})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProfitRollup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload configures the retention of idempotency keys.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask creates a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
