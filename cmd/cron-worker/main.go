package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/corpalert/corpalert-backend/internal/alerts"
	"github.com/corpalert/corpalert-backend/internal/cron"
	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/db"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"github.com/corpalert/corpalert-backend/pkg/migrate"
	"github.com/corpalert/corpalert-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	locker, err := cron.NewRedisLocker(redisClient, redisClient.LockKey(leaseName(cfg.App.Env)), 0)
	if err != nil {
		return err
	}

	expiredAlerts, err := cron.NewExpiredAlertsJob(cron.ExpiredAlertsJobParams{
		Logger:     logg,
		Repository: alerts.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.ExpiredAlertRetention,
	})
	if err != nil {
		return err
	}

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:     logg,
		Jobs:       []cron.Job{expiredAlerts},
		Locker:     locker,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:       cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	return scheduler.Run(ctx)
}

func leaseName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceName + ":" + env
}
