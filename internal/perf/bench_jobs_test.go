package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/rawdatain/backoffice/internal/jobs"
	"github.com/rawdatain/backoffice/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Audit records are small and frequent.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track(jobs.TaskAuditRecord)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending audit tracker: %v", err)
		}
	}

	// Rollups scan a month of periods and run slower.
	for i := 0; i < 10; i++ {
		tracker := metrics.Track(jobs.TaskProfitRollup)
		time.Sleep(20 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending rollup tracker: %v", err)
		}
		metrics.AddRolledMonths("USD", 1)
	}

	// A few storage failures must surface as failures.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track(jobs.TaskAuditRecord)
		if err := tracker.End(errors.New("timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "backoffice_jobs_total", map[string]string{"job": jobs.TaskAuditRecord, "status": "success"})
	failure := metricValue(t, families, "backoffice_jobs_total", map[string]string{"job": jobs.TaskAuditRecord, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no audit job executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("audit job success ratio too low: %f", ratio)
	}

	if rolled := metricValue(t, families, "backoffice_profit_rollup_months_total", map[string]string{"currency": "USD"}); rolled != 10 {
		t.Fatalf("expected 10 rolled months, got %f", rolled)
	}

	rollupDuration := histogramMean(t, families, "backoffice_job_duration_seconds", map[string]string{"job": jobs.TaskProfitRollup})
	if rollupDuration > 2.0 {
		t.Fatalf("rollup duration above budget: %f", rollupDuration)
	}

	auditDuration := histogramMean(t, families, "backoffice_job_duration_seconds", map[string]string{"job": jobs.TaskAuditRecord})
	if auditDuration > 0.5 {
		t.Fatalf("audit duration above budget: %f", auditDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
