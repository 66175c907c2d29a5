package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/logger"
)

const (
	expiredAlertRetention = 30 * 24 * time.Hour
	expiredAlertBatchSize = 500
	// bounds a single run so a large backlog drains across cycles
	expiredAlertMaxBatches = 20
)

type expiredAlertRepo interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type ExpiredAlertsJobParams struct {
	Logger     *logger.Logger
	Repository expiredAlertRepo
	Retention  time.Duration
	BatchSize  int
}

// NewExpiredAlertsJob purges alerts whose expiry is older than the retention window.
func NewExpiredAlertsJob(params ExpiredAlertsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("alerts repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = expiredAlertRetention
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = expiredAlertBatchSize
	}
	return &expiredAlertsJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type expiredAlertsJob struct {
	logg      *logger.Logger
	repo      expiredAlertRepo
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *expiredAlertsJob) Name() string { return "expired-alerts-retention" }

func (j *expiredAlertsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	for i := 0; i < expiredAlertMaxBatches; i++ {
		rows, err := j.repo.DeleteExpiredBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("expired alerts retention: %w", err)
		}
		deleted += rows
		if rows < int64(j.batch) {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "expired alerts cleanup complete")
	return nil
}
