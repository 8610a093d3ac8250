package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	jobmetrics "github.com/rawdatain/backoffice/internal/jobs"
	"github.com/rawdatain/backoffice/internal/segments"
)

// FirmShareSource sums the firm share of saved segment periods for a month.
type FirmShareSource interface {
	MonthlyFirmShare(ctx context.Context, month time.Time) ([]segments.MonthlyTotal, error)
}

// MonthlyProfitSink records system monthly profits.
type MonthlyProfitSink interface {
	RecordSystemMonth(ctx context.Context, monthID string, currency apportion.Currency, profit decimal.Decimal) error
}

// ProfitRollupJob upserts the YYYY-MM monthly profit of every currency from saved segment periods.
type ProfitRollupJob struct {
	Source  FirmShareSource
	Sink    MonthlyProfitSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewProfitRollupJob constructs the job handler.
func NewProfitRollupJob(source FirmShareSource, sink MonthlyProfitSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProfitRollupJob {
	return &ProfitRollupJob{
		Source:  source,
		Sink:    sink,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the rollup.
func (j *ProfitRollupJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Source == nil || j.Sink == nil {
		return errors.New("profit rollup: dependencies not configured")
	}
	var payload ProfitRollupPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("profit rollup: decode: %v: %w", err, asynq.SkipRetry)
		}
	}
	months, err := j.months(payload.Month)
	if err != nil {
		return fmt.Errorf("profit rollup: %v: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOr(j.Metrics).Track(TaskProfitRollup)
	defer func() {
		err = tracker.End(err)
	}()

	start := j.now()
	for _, month := range months {
		if err := j.Rollup(ctx, month); err != nil {
			return err
		}
	}
	j.log().Info("rolled up monthly profits", slog.Int("months", len(months)), slog.Duration("duration", time.Since(start)))
	return nil
}

// Rollup records the firm share totals of month.
func (j *ProfitRollupJob) Rollup(ctx context.Context, month time.Time) error {
	monthID := month.Format(monthLayout)
	totals, err := j.Source.MonthlyFirmShare(ctx, month)
	if err != nil {
		j.log().Error("sum firm share", slog.String("month", monthID), slog.Any("error", err))
		return err
	}
	for _, total := range totals {
		if err := j.Sink.RecordSystemMonth(ctx, monthID, total.Currency, total.FirmShare.Round(2)); err != nil {
			j.log().Error("record monthly profit", slog.String("month", monthID), slog.String("currency", string(total.Currency)), slog.Any("error", err))
			return err
		}
		metricsOr(j.Metrics).AddRolledMonths(string(total.Currency), 1)
	}
	return nil
}

// months resolves the payload month, defaulting to the previous and the current month so late
// saves for the month just closed are still picked up.
func (j *ProfitRollupJob) months(month string) ([]time.Time, error) {
	if month != "" {
		parsed, err := time.Parse(monthLayout, month)
		if err != nil {
			return nil, fmt.Errorf("invalid month %q", month)
		}
		return []time.Time{parsed}, nil
	}
	now := j.now()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return []time.Time{current.AddDate(0, -1, 0), current}, nil
}

func (j *ProfitRollupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskProfitRollup))
	}
	return slog.Default().With(slog.String("job", TaskProfitRollup))
}

func (j *ProfitRollupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ProfitRollupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
