package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/audit"
	jobmetrics "github.com/rawdatain/backoffice/internal/jobs"
	"github.com/rawdatain/backoffice/internal/segments"
)

type stubFirmShare map[string][]segments.MonthlyTotal

func (s stubFirmShare) MonthlyFirmShare(_ context.Context, month time.Time) ([]segments.MonthlyTotal, error) {
	return s[month.Format(monthLayout)], nil
}

type recordedMonth struct {
	month    string
	currency apportion.Currency
	profit   string
}

type sinkRecorder struct {
	rows []recordedMonth
	err  error
}

func (s *sinkRecorder) RecordSystemMonth(_ context.Context, monthID string, currency apportion.Currency, profit decimal.Decimal) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, recordedMonth{month: monthID, currency: currency, profit: profit.StringFixed(2)})
	return nil
}

func TestProfitRollupDefaultsToPreviousAndCurrentMonth(t *testing.T) {
	source := stubFirmShare{
		"2024-02": {{Currency: apportion.CurrencyUSD, FirmShare: decimal.RequireFromString("600.004"), Periods: 2}},
		"2024-03": {
			{Currency: apportion.CurrencyIQD, FirmShare: decimal.NewFromInt(250000), Periods: 1},
			{Currency: apportion.CurrencyUSD, FirmShare: decimal.NewFromInt(90), Periods: 1},
		},
	}
	sink := &sinkRecorder{}
	job := NewProfitRollupJob(source, sink, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2024, 3, 18, 2, 0, 0, 0, time.UTC) })

	task, err := NewProfitRollupTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []recordedMonth{
		{month: "2024-02", currency: apportion.CurrencyUSD, profit: "600.00"},
		{month: "2024-03", currency: apportion.CurrencyIQD, profit: "250000.00"},
		{month: "2024-03", currency: apportion.CurrencyUSD, profit: "90.00"},
	}, sink.rows)
}

func TestProfitRollupSingleMonthAndErrors(t *testing.T) {
	sink := &sinkRecorder{}
	job := NewProfitRollupJob(stubFirmShare{
		"2023-12": {{Currency: apportion.CurrencyUSD, FirmShare: decimal.NewFromInt(10)}},
	}, sink, nil, nil)

	task, err := NewProfitRollupTask("2023-12")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sink.rows, 1)

	_, err = NewProfitRollupTask("December")
	require.Error(t, err)

	bad := asynq.NewTask(TaskProfitRollup, []byte(`{"month":"13-2023"}`))
	err = job.Handle(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)

	sink.err = errors.New("db down")
	require.EqualError(t, job.Handle(context.Background(), task), "db down")
}

type recorderStub struct {
	events []audit.Event
	err    error
}

func (r *recorderStub) Record(_ context.Context, evt audit.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, evt)
	return nil
}

func TestAuditRecordJob(t *testing.T) {
	rec := &recorderStub{}
	job := NewAuditRecordJob(rec, nil, nil)
	evt := audit.Event{UserID: "5", UserName: "Layla", Action: audit.ActionCreate, TargetType: audit.TargetVoucher, TargetID: "101"}
	task, err := NewAuditRecordTask(evt)
	require.NoError(t, err)
	require.Equal(t, TaskAuditRecord, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, rec.events, 1)
	require.Equal(t, "101", rec.events[0].TargetID)

	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	rec.err = audit.ErrIncompleteEvent
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)

	rec.err = errors.New("timeout")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type prunerStub struct{ retention time.Duration }

func (p *prunerStub) Cleanup(_ context.Context, olderThan time.Duration) error {
	p.retention = olderThan
	return nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	store := &prunerStub{}
	job := NewIdempotencyCleanupJob(store, nil, nil)

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, store.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, defaultKeyRetention, store.retention)
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (i inspectorStub) GetQueueInfo(string) (*asynq.QueueInfo, error) { return i.info, i.err }

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(NewHandler(inspectorStub{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Failed: 1}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 3, body.Pending)
	require.Equal(t, 1, body.Failed)

	rr = serve(NewHandler(inspectorStub{err: errors.New("redis down")}, nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type rollupStub struct{ months []string }

func (r *rollupStub) EnqueueProfitRollup(_ context.Context, month string) (*asynq.TaskInfo, error) {
	if _, err := NewProfitRollupTask(month); err != nil {
		return nil, err
	}
	r.months = append(r.months, month)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func TestRollupEndpoint(t *testing.T) {
	stub := &rollupStub{}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).WithRollups(stub).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/rollup", strings.NewReader(`{"month":"2024-02"}`)))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Contains(t, rr.Body.String(), `"taskId":"task-1"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/rollup", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, []string{"2024-02", ""}, stub.months)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/rollup", strings.NewReader(`{"month":"Feb"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"month"`)
}
