package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "sealtrack"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "SEALTRACK_DB_DSN"
	EnvDBHost = "SEALTRACK_DB_HOST"
	EnvDBUser = "SEALTRACK_DB_USER"
	EnvDBName = "SEALTRACK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Tracking      TrackingConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SEALTRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"SEALTRACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SEALTRACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SEALTRACK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SEALTRACK_DB_DSN"`
	Driver string `envconfig:"SEALTRACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SEALTRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"SEALTRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SEALTRACK_DB_USER"`
	LegacyPassword string `envconfig:"SEALTRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"SEALTRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"SEALTRACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SEALTRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SEALTRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SEALTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SEALTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SEALTRACK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SEALTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"SEALTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SEALTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SEALTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SEALTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SEALTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SEALTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SEALTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SEALTRACK_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SEALTRACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SEALTRACK_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SEALTRACK_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SEALTRACK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SEALTRACK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SEALTRACK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SEALTRACK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SEALTRACK_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SEALTRACK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIdentityLimit int           `envconfig:"SEALTRACK_AUTH_RATE_LIMIT_LOGIN_IDENTITY_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"SEALTRACK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

// TrackingConfig tunes the live tracking gateway.
type TrackingConfig struct {
	PingMinInterval     time.Duration `envconfig:"SEALTRACK_TRACKING_PING_MIN_INTERVAL" default:"3s"`
	LimiterBackend      string        `envconfig:"SEALTRACK_TRACKING_LIMITER_BACKEND" default:"memory"`
	WriteTimeout        time.Duration `envconfig:"SEALTRACK_TRACKING_WRITE_TIMEOUT" default:"10s"`
	PongTimeout         time.Duration `envconfig:"SEALTRACK_TRACKING_PONG_TIMEOUT" default:"60s"`
	MaxMessageBytes     int64         `envconfig:"SEALTRACK_TRACKING_MAX_MESSAGE_BYTES" default:"4096"`
	SendBufferSize      int           `envconfig:"SEALTRACK_TRACKING_SEND_BUFFER" default:"32"`
	DefaultFenceRadiusM int           `envconfig:"SEALTRACK_TRACKING_DEFAULT_FENCE_RADIUS_M" default:"100"`
	AllowedOriginsCSV   string        `envconfig:"SEALTRACK_TRACKING_ALLOWED_ORIGINS"`
}

// UseRedisLimiter reports whether ping rate limiting should run against the
// shared Redis store instead of a per-process map. Required when the gateway
// is horizontally scaled, otherwise a client can exceed the ping limit by
// reconnecting to a different instance.
func (t TrackingConfig) UseRedisLimiter() bool {
	return strings.EqualFold(strings.TrimSpace(t.LimiterBackend), "redis")
}

// AllowedOrigins splits the configured CSV into origin values.
func (t TrackingConfig) AllowedOrigins() []string {
	if strings.TrimSpace(t.AllowedOriginsCSV) == "" {
		return nil
	}
	parts := strings.Split(t.AllowedOriginsCSV, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SEALTRACK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SEALTRACK_AUTO_MIGRATE" default:"false"`
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
