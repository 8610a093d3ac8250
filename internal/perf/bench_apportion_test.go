package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
)

var partners = []apportion.PartnerDeclaration{
	{ID: "p1", PartnerID: "ashur", PartnerName: "Ashur", Percentage: decimal.NewFromInt(60)},
	{ID: "p2", PartnerID: "nineveh", PartnerName: "Nineveh", Percentage: decimal.NewFromInt(40)},
}

func buildEntries(n int) []apportion.CompanyEntry {
	rates := apportion.DefaultRates()
	retention := decimal.NewFromInt(30)
	entries := make([]apportion.CompanyEntry, n)
	for i := range entries {
		entries[i] = apportion.CompanyEntry{
			ID:       fmt.Sprintf("e%d", i),
			ClientID: fmt.Sprintf("c%d", i%25),
			Lines:    apportion.NewServiceLines([4]int{1200 + i, 300, 75 * (i % 4), 40}, rates),
		}.Apply(true, retention, partners)
	}
	return entries
}

func TestPeriodAggregationLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		entries   int
		threshold time.Duration
	}{
		{name: "typical", entries: 50, threshold: 20 * time.Millisecond},
		{name: "large", entries: 1000, threshold: 250 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 20)
		for i := 0; i < 20; i++ {
			start := time.Now()
			totals := apportion.AggregatePeriod(buildEntries(scenario.entries))
			samples = append(samples, time.Since(start))
			if err := totals.CheckBalanced(); err != nil {
				t.Fatalf("%s: %v", scenario.name, err)
			}
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s aggregation regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkCompanyTotal(b *testing.B) {
	lines := apportion.NewServiceLines([4]int{1500, 300, 225, 40}, apportion.DefaultRates())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = apportion.CompanyTotal(lines)
	}
}

func BenchmarkAggregatePeriod(b *testing.B) {
	entries := buildEntries(200)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = apportion.AggregatePeriod(entries)
	}
}

func BenchmarkPartnerTotals(b *testing.B) {
	entries := buildEntries(200)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = apportion.PartnerTotals(entries)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
