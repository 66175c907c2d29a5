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
	"go.uber.org/multierr"

	"github.com/corpalert/corpalert-backend/api/routes"
	"github.com/corpalert/corpalert-backend/internal/admin"
	"github.com/corpalert/corpalert-backend/internal/alerts"
	"github.com/corpalert/corpalert-backend/internal/auth"
	"github.com/corpalert/corpalert-backend/internal/notifications"
	"github.com/corpalert/corpalert-backend/internal/profile"
	"github.com/corpalert/corpalert-backend/internal/users"
	"github.com/corpalert/corpalert-backend/pkg/auth/session"
	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/db"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"github.com/corpalert/corpalert-backend/pkg/migrate"
	"github.com/corpalert/corpalert-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	requireService(logg, "auth", err)

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	requireService(logg, "register", err)

	profileService, err := profile.NewService(userRepo, cfg.Password)
	requireService(logg, "profile", err)

	adminService, err := admin.NewService(userRepo)
	requireService(logg, "admin", err)

	if cfg.Admin.Enabled() {
		seeder, err := auth.NewAdminSeeder(auth.AdminSeederParams{DB: dbClient, PasswordConfig: cfg.Password})
		requireService(logg, "admin seeder", err)
		if _, created, err := seeder.EnsureAdmin(context.Background(), cfg.Admin); err != nil {
			logg.Error(context.Background(), "failed to seed admin user", err)
			os.Exit(1)
		} else if created {
			logg.Info(logg.WithField(context.Background(), "email", cfg.Admin.Email), "seeded admin user")
		}
	}

	notificationMetrics := metrics.NewNotificationMetrics(prometheus.DefaultRegisterer)
	hub := notifications.NewHub(notificationMetrics, logg)
	channel := cfg.Notifications.Channel
	notifier := notifications.NewNotifier(notifications.NotifierParams{
		Users:        userRepo,
		Broker:       notifications.NewRedisBroker(redisClient, channel),
		RadiusMeters: cfg.Notifications.RadiusMeters,
		Metrics:      notificationMetrics,
		Logger:       logg,
	})

	alertsService, err := alerts.NewService(alerts.ServiceParams{
		Repo:     alerts.NewRepository(dbClient.DB()),
		Users:    userRepo,
		Notifier: notifier,
		Logger:   logg,
	})
	requireService(logg, "alerts", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	relay := notifications.NewRelay(redisClient, channel, hub, logg)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "notification relay stopped", err)
		}
	}()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			RateLimiter:     redisClient,
			Sessions:        sessionManager,
			AuthService:     authService,
			RegisterService: registerService,
			ProfileService:  profileService,
			AdminService:    adminService,
			AlertsService:   alertsService,
			Users:           userRepo,
			Hub:             hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	err = multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	)
	if err != nil {
		logg.Error(shutdownCtx, "error during shutdown", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(context.Background(), "service", name), "failed to create service", err)
	os.Exit(1)
}
