package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/rawdatain/backoffice/internal/jobs"
)

const defaultKeyRetention = 72 * time.Hour

// KeyPruner removes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes expired idempotency keys.
type IdempotencyCleanupJob struct {
	Store   KeyPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the job handler.
func NewIdempotencyCleanupJob(store KeyPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: dependencies not configured")
	}
	retention := defaultKeyRetention
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err == nil && payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}

	tracker := metricsOr(j.Metrics).Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		if j.Logger != nil {
			j.Logger.Error("prune idempotency keys", slog.Any("error", err))
		}
		return err
	}
	return nil
}
