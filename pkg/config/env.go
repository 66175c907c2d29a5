package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "CORPALERT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	SessionBackendRedis  = "redis"
	SessionBackendFile   = "file"
	SessionBackendMemory = "memory"
)

const (
	EnvAppEnv                 = "CORPALERT_APP_ENV"
	EnvPort                   = "CORPALERT_APP_PORT"
	EnvDBDSN                  = "CORPALERT_DB_DSN"
	EnvDBHost                 = "CORPALERT_DB_HOST"
	EnvDBUser                 = "CORPALERT_DB_USER"
	EnvDBName                 = "CORPALERT_DB_NAME"
	EnvRedisURL               = "CORPALERT_REDIS_URL"
	EnvJWTSecret              = "CORPALERT_JWT_SECRET"
	EnvJWTIssuer              = "CORPALERT_JWT_ISSUER"
	EnvJWTExpMins             = "CORPALERT_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "CORPALERT_REFRESH_TOKEN_TTL_MINUTES"
	EnvPortalAPIBaseURL       = "CORPALERT_PORTAL_API_BASE_URL"
	EnvPortalSessionBackend   = "CORPALERT_PORTAL_SESSION_BACKEND"
	EnvNotificationsRadius    = "CORPALERT_NOTIFICATIONS_RADIUS_METERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
