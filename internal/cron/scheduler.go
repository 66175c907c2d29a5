package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
)

const (
	defaultTick       = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type SchedulerParams struct {
	Logger     *logger.Logger
	Jobs       []Job
	Locker     Locker
	Metrics    *metrics.CronJobMetrics
	Tick       time.Duration
	JobTimeout time.Duration
}

// Scheduler runs every job once per tick while holding the shared lease.
type Scheduler struct {
	logg       *logger.Logger
	jobs       []Job
	locker     Locker
	metrics    *metrics.CronJobMetrics
	tick       time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// TickReport summarizes one pass over the job list.
type TickReport struct {
	Skipped bool
	Ran     []string
	Failed  []string
}

func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	jobs, err := checkJobs(params.Jobs)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		logg:       params.Logger,
		jobs:       jobs,
		locker:     params.Locker,
		metrics:    params.Metrics,
		tick:       params.Tick,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run ticks immediately and then on every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logg.Error(ctx, "cron tick failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs a single pass. Job failures do not stop later jobs; they are
// combined into the returned error.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	unlock, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		return report, fmt.Errorf("cron lease: %w", err)
	}
	if !ok {
		report.Skipped = true
		s.logg.Info(ctx, "cron lease held elsewhere, skipping tick")
		return report, nil
	}
	defer func() {
		// the tick context may already be canceled on shutdown
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lease release failed", err)
		}
	}()

	var errs error
	for _, job := range s.jobs {
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_ran":    len(report.Ran),
		"jobs_failed": len(report.Failed),
	}), "cron tick finished")
	return report, errs
}

func (s *Scheduler) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	started := s.now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		elapsed := s.now().Sub(started)
		s.metrics.ObserveRun(name, elapsed, err)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Info(logCtx, "cron job done")
	}()
	return job.Run(jobCtx)
}
