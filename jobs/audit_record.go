package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	"github.com/rawdatain/backoffice/internal/audit"
	jobmetrics "github.com/rawdatain/backoffice/internal/jobs"
)

// AuditRecorder persists audit events.
type AuditRecorder interface {
	Record(ctx context.Context, evt audit.Event) error
}

// AuditRecordJob writes queued audit events to the activity log.
type AuditRecordJob struct {
	Recorder AuditRecorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAuditRecordJob constructs the job handler.
func NewAuditRecordJob(recorder AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	return &AuditRecordJob{Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle executes the audit record job. Malformed or invalid events are dropped without retry.
func (j *AuditRecordJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Recorder == nil {
		return errors.New("audit record: dependencies not configured")
	}
	var evt audit.Event
	if err := json.Unmarshal(task.Payload(), &evt); err != nil {
		j.log().Error("decode audit event", slog.Any("error", err))
		return fmt.Errorf("audit record: decode: %v: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOr(j.Metrics).Track(TaskAuditRecord)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Recorder.Record(ctx, evt); err != nil {
		if errors.Is(err, audit.ErrIncompleteEvent) {
			j.log().Warn("drop invalid audit event", slog.String("target_type", string(evt.TargetType)), slog.Any("error", err))
			return fmt.Errorf("audit record: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (j *AuditRecordJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRecord))
	}
	return slog.Default().With(slog.String("job", TaskAuditRecord))
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
