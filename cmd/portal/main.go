package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corpalert/corpalert-backend/internal/portal"
	"github.com/corpalert/corpalert-backend/pkg/apiclient"
	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"github.com/corpalert/corpalert-backend/pkg/redis"
	"github.com/corpalert/corpalert-backend/pkg/usersession"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "portal"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "portal"

	logg = logger.New(logger.Options{
		ServiceName: "portal",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	client, err := apiclient.New(cfg.Portal.APIBaseURL, apiclient.WithTimeout(cfg.Portal.APITimeout))
	if err != nil {
		logg.Error(context.Background(), "failed to create api client", err)
		os.Exit(1)
	}

	storage, closeStorage, err := sessionStorage(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create session storage", err)
		os.Exit(1)
	}
	defer closeStorage()

	ordering := usersession.OrderLastResolved
	if cfg.Portal.StrictOrdering {
		ordering = usersession.OrderLatestDispatched
	}
	registry := usersession.NewRegistry(usersession.RegistryOptions{
		Storage:  storage,
		Fetcher:  client,
		Ordering: ordering,
		Logger:   logg,
		Metrics:  metrics.NewSessionMetrics(prometheus.DefaultRegisterer),
	})

	srv, err := portal.NewServer(portal.ServerParams{
		Registry: registry,
		Backend:  client,
		Config:   cfg.Portal,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create portal server", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", srv.Routes())

	addr := ":" + cfg.Portal.Port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"api":             cfg.Portal.APIBaseURL,
		"session_backend": cfg.Portal.Backend(),
		"ordering":        ordering.String(),
	})

	go registry.RunSweeper(ctx, cfg.Portal.StoreIdle)

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "portal shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting portal server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "portal server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "portal server stopped")
}

func sessionStorage(cfg *config.Config, logg *logger.Logger) (usersession.Storage, func(), error) {
	noop := func() {}
	switch cfg.Portal.Backend() {
	case config.SessionBackendMemory:
		return usersession.NewMemoryStorage(), noop, nil
	case config.SessionBackendFile:
		storage, err := usersession.NewFileStorage(cfg.Portal.SessionDir)
		return storage, noop, err
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return nil, noop, err
	}
	closeRedis := func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}
	storage, err := usersession.NewRedisStorage(redisClient, cfg.Portal.SessionTTL)
	if err != nil {
		closeRedis()
		return nil, noop, err
	}
	return storage, closeRedis, nil
}
