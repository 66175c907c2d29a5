package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corpalert/corpalert-backend/api/controllers"
	"github.com/corpalert/corpalert-backend/api/middleware"
	"github.com/corpalert/corpalert-backend/internal/admin"
	"github.com/corpalert/corpalert-backend/internal/alerts"
	"github.com/corpalert/corpalert-backend/internal/auth"
	"github.com/corpalert/corpalert-backend/internal/profile"
	"github.com/corpalert/corpalert-backend/pkg/auth/session"
	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

type notificationHub interface {
	Serve(ctx context.Context, userID uuid.UUID, conn *websocket.Conn)
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Deps bundles everything the API routes need.
type Deps struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           controllers.Pinger
	RateLimiter     middleware.FixedWindowLimiter
	Sessions        sessionManager
	AuthService     auth.Service
	RegisterService auth.RegisterService
	ProfileService  profile.Service
	AdminService    admin.Service
	AlertsService   alerts.Service
	Users           userLoader
	Hub             notificationHub
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)
	r.NotFound(controllers.NotFound(logg))

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": d.DB,
			"redis":    d.Redis,
		}))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, d.RateLimiter, logg)).Post("/login", controllers.AuthLogin(d.AuthService, cfg.JWT, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, d.RateLimiter, logg)).Post("/register", controllers.AuthRegister(d.RegisterService, d.AuthService, cfg.JWT, logg))
		r.Post("/logout", controllers.AuthLogout(d.Sessions, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(d.Sessions, cfg.JWT, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))

		r.Get("/api/ws", controllers.NotificationsSocket(d.Hub, d.Users, cfg.App.CORSOrigins, logg))

		r.Route("/api/user/profile", func(r chi.Router) {
			r.Get("/", controllers.ProfileGet(d.ProfileService, logg))
			r.Put("/", controllers.ProfileUpdate(d.ProfileService, logg))
			r.Put("/password", controllers.ProfileChangePassword(d.ProfileService, logg))
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.RoleAdmin))
			r.Get("/users", controllers.AdminListUsers(d.AdminService, logg))
			r.Delete("/users/{userId}", controllers.AdminDeleteUser(d.AdminService, logg))
			r.Post("/users/{userId}/approve", controllers.AdminApproveUser(d.AdminService, logg))
		})

		r.Route("/api/alerts", func(r chi.Router) {
			r.Get("/", controllers.AlertsList(d.AlertsService, logg))
			r.Post("/search", controllers.AlertsSearch(d.AlertsService, logg))
			r.Get("/{alertId}", controllers.AlertsGet(d.AlertsService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.RoleAgronomist))
				r.Post("/", controllers.AlertsCreate(d.AlertsService, logg))
				r.Get("/mine", controllers.AlertsMine(d.AlertsService, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.RoleAgronomist, enums.RoleAdmin))
				r.Put("/{alertId}", controllers.AlertsUpdate(d.AlertsService, logg))
				r.Delete("/{alertId}", controllers.AlertsDelete(d.AlertsService, logg))
			})
		})
	})

	return r
}
