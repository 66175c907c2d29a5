package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "expired-alert-retention"
	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("timeout"))
	m.ObserveRun("", time.Millisecond, nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	ok, err := fetchCounterValue(mfs, "corpalert_cron_job_runs_total", map[string]string{"job": job, "outcome": "ok"})
	if err != nil || ok != 1 {
		t.Fatalf("expected ok=1, got %v (%v)", ok, err)
	}
	failed, err := fetchCounterValue(mfs, "corpalert_cron_job_runs_total", map[string]string{"job": job, "outcome": "failed"})
	if err != nil || failed != 1 {
		t.Fatalf("expected failed=1, got %v (%v)", failed, err)
	}
	if _, err := fetchCounterValue(mfs, "corpalert_cron_job_runs_total", map[string]string{"job": "unknown", "outcome": "ok"}); err != nil {
		t.Fatalf("blank job should fall back to unknown: %v", err)
	}
	sum, err := fetchHistogramSum(mfs, "corpalert_cron_job_duration_seconds", map[string]string{"job": job})
	if err != nil {
		t.Fatalf("fetch duration: %v", err)
	}
	if sum < 1.25 {
		t.Fatalf("expected duration sum >= 1.25s, got %f", sum)
	}
	if mf := findMetricFamily(mfs, "corpalert_cron_job_last_success_timestamp_seconds"); mf == nil || len(mf.GetMetric()) != 2 {
		t.Fatalf("expected last success gauge for two jobs")
	}
}

func TestCronJobMetricsNilIsNoop(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", time.Second, nil)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findSeries(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findSeries(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findSeries(mfs []*dto.MetricFamily, name string, labels map[string]string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
