package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Portal        PortalConfig
	Notifications NotificationsConfig
	Cron          CronConfig
	Admin         AdminConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Portal.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CORPALERT_APP_ENV" required:"true"`
	Port         string `envconfig:"CORPALERT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CORPALERT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CORPALERT_LOG_WARN_STACK" default:"false"`
	// CORSOrigins also bounds which origins may open the notifications socket.
	CORSOrigins []string `envconfig:"CORPALERT_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CORPALERT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"CORPALERT_DB_DSN"`

	LegacyHost     string `envconfig:"CORPALERT_DB_HOST"`
	LegacyPort     int    `envconfig:"CORPALERT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CORPALERT_DB_USER"`
	LegacyPassword string `envconfig:"CORPALERT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CORPALERT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CORPALERT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CORPALERT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CORPALERT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CORPALERT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CORPALERT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CORPALERT_REDIS_URL" required:"true"`
	Namespace    string        `envconfig:"CORPALERT_REDIS_NAMESPACE" default:"ca"`
	Address      string        `envconfig:"CORPALERT_REDIS_ADDR"`
	Password     string        `envconfig:"CORPALERT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CORPALERT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CORPALERT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CORPALERT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CORPALERT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CORPALERT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CORPALERT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CORPALERT_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CORPALERT_JWT_ISSUER" default:"corpalert"`
	ExpirationMinutes      int    `envconfig:"CORPALERT_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"CORPALERT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
	CookieSecure           bool   `envconfig:"CORPALERT_JWT_COOKIE_SECURE" default:"true"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CORPALERT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CORPALERT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CORPALERT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CORPALERT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CORPALERT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CORPALERT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CORPALERT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CORPALERT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CORPALERT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CORPALERT_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CORPALERT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CORPALERT_AUTO_MIGRATE" default:"false"`
}

// PortalConfig drives the browser-facing application server.
type PortalConfig struct {
	Port           string        `envconfig:"CORPALERT_PORTAL_PORT" default:"8080"`
	APIBaseURL     string        `envconfig:"CORPALERT_PORTAL_API_BASE_URL" default:"http://localhost:5000"`
	APITimeout     time.Duration `envconfig:"CORPALERT_PORTAL_API_TIMEOUT" default:"10s"`
	SessionBackend string        `envconfig:"CORPALERT_PORTAL_SESSION_BACKEND" default:"redis"`
	SessionDir     string        `envconfig:"CORPALERT_PORTAL_SESSION_DIR" default:".corpalert/sessions"`
	SessionTTL     time.Duration `envconfig:"CORPALERT_PORTAL_SESSION_TTL" default:"720h"`
	StoreIdle      time.Duration `envconfig:"CORPALERT_PORTAL_STORE_IDLE" default:"30m"`
	CookieSecure   bool          `envconfig:"CORPALERT_PORTAL_COOKIE_SECURE" default:"true"`
	StrictOrdering bool          `envconfig:"CORPALERT_PORTAL_STRICT_ORDERING" default:"true"`
}

func (p PortalConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.SessionBackend)) {
	case SessionBackendRedis, SessionBackendFile, SessionBackendMemory:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s, %s", EnvPortalSessionBackend, SessionBackendRedis, SessionBackendFile, SessionBackendMemory)
}

// Backend returns the normalized session storage backend name.
func (p PortalConfig) Backend() string {
	return strings.ToLower(strings.TrimSpace(p.SessionBackend))
}

type NotificationsConfig struct {
	RadiusMeters float64 `envconfig:"CORPALERT_NOTIFICATIONS_RADIUS_METERS" default:"10000"`
	Channel      string  `envconfig:"CORPALERT_NOTIFICATIONS_CHANNEL" default:"alerts"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"CORPALERT_CRON_INTERVAL" default:"1h"`
	ExpiredAlertRetention time.Duration `envconfig:"CORPALERT_CRON_EXPIRED_ALERT_RETENTION" default:"720h"`
	JobTimeout            time.Duration `envconfig:"CORPALERT_CRON_JOB_TIMEOUT" default:"10m"`
}

// AdminConfig seeds the first administrator on API boot when Email is set.
type AdminConfig struct {
	Email     string `envconfig:"CORPALERT_ADMIN_EMAIL"`
	Password  string `envconfig:"CORPALERT_ADMIN_PASSWORD"`
	FirstName string `envconfig:"CORPALERT_ADMIN_FIRST_NAME" default:"CorpAlert"`
	LastName  string `envconfig:"CORPALERT_ADMIN_LAST_NAME" default:"Admin"`
}

// Enabled reports whether an admin account should be seeded.
func (a AdminConfig) Enabled() bool {
	return strings.TrimSpace(a.Email) != "" && a.Password != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
