package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/logger"
)

func TestExpiredAlertsJobDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeExpiredAlertRepo{results: []int64{2, 2, 1}}
	job := newExpiredAlertsJob(t, repo, 2)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.called != 3 {
		t.Fatalf("expected 3 batches, got %d", repo.called)
	}
	want := now.Add(-expiredAlertRetention)
	if !repo.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.lastCutoff)
	}
}

func TestExpiredAlertsJobStopsAtBatchCap(t *testing.T) {
	results := make([]int64, expiredAlertMaxBatches+5)
	for i := range results {
		results[i] = 1
	}
	repo := &fakeExpiredAlertRepo{results: results}
	job := newExpiredAlertsJob(t, repo, 1)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.called != expiredAlertMaxBatches {
		t.Fatalf("expected %d batches, got %d", expiredAlertMaxBatches, repo.called)
	}
}

func TestExpiredAlertsJobPropagatesError(t *testing.T) {
	repo := &fakeExpiredAlertRepo{err: errors.New("boom")}
	job := newExpiredAlertsJob(t, repo, 10)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newExpiredAlertsJob(t *testing.T, repo *fakeExpiredAlertRepo, batch int) *expiredAlertsJob {
	t.Helper()
	jobIface, err := NewExpiredAlertsJob(ExpiredAlertsJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		BatchSize:  batch,
	})
	if err != nil {
		t.Fatalf("NewExpiredAlertsJob: %v", err)
	}
	job, ok := jobIface.(*expiredAlertsJob)
	if !ok {
		t.Fatalf("expected expiredAlertsJob, got %T", jobIface)
	}
	return job
}

type fakeExpiredAlertRepo struct {
	results    []int64
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeExpiredAlertRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}
