package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	AccessCode AccessCodeConfig
	Downloads  DownloadsConfig
	Exports    ExportsConfig
	MediaStore MediaStoreConfig
	Mailer     MailerConfig
	GCP        GCPConfig
	PubSub     PubSubConfig
	Flags      FeatureFlagsConfig
	Admin      AdminConfig
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
	Env          string `envconfig:"LUMENFOLIO_APP_ENV" required:"true"`
	Port         string `envconfig:"LUMENFOLIO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LUMENFOLIO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LUMENFOLIO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LUMENFOLIO_DB_DSN"`
	Driver string `envconfig:"LUMENFOLIO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LUMENFOLIO_DB_HOST"`
	LegacyPort     int    `envconfig:"LUMENFOLIO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LUMENFOLIO_DB_USER"`
	LegacyPassword string `envconfig:"LUMENFOLIO_DB_PASSWORD"`
	LegacyName     string `envconfig:"LUMENFOLIO_DB_NAME"`
	LegacySSLMode  string `envconfig:"LUMENFOLIO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LUMENFOLIO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LUMENFOLIO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LUMENFOLIO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LUMENFOLIO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LUMENFOLIO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LUMENFOLIO_REDIS_ADDR"`
	Password     string        `envconfig:"LUMENFOLIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"LUMENFOLIO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LUMENFOLIO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LUMENFOLIO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LUMENFOLIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LUMENFOLIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LUMENFOLIO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LUMENFOLIO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LUMENFOLIO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LUMENFOLIO_JWT_EXPIRATION_MINUTES" default:"720"`
}

// AccessCodeConfig governs visitor access-code hashing, portal sessions, and
// brute-force throttling on the authenticate endpoint.
type AccessCodeConfig struct {
	SessionTTL time.Duration `envconfig:"LUMENFOLIO_ACCESS_SESSION_TTL" default:"6h"`

	VerifyWindow  time.Duration `envconfig:"LUMENFOLIO_ACCESS_VERIFY_WINDOW" default:"5m"`
	VerifyLimit   int           `envconfig:"LUMENFOLIO_ACCESS_VERIFY_LIMIT" default:"10"`
	VerifyIPLimit int           `envconfig:"LUMENFOLIO_ACCESS_VERIFY_IP_LIMIT" default:"30"`

	ArgonMemoryKB    int `envconfig:"LUMENFOLIO_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LUMENFOLIO_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LUMENFOLIO_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LUMENFOLIO_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LUMENFOLIO_ARGON_KEY_LEN" default:"32"`
}

// DownloadsConfig tunes the download ledger window.
type DownloadsConfig struct {
	Window time.Duration `envconfig:"LUMENFOLIO_DOWNLOADS_WINDOW" default:"24h"`
}

type ExportsConfig struct {
	FetchTimeout time.Duration `envconfig:"LUMENFOLIO_EXPORTS_FETCH_TIMEOUT" default:"2m"`
}

type MediaStoreConfig struct {
	BaseURL      string        `envconfig:"LUMENFOLIO_MEDIA_STORE_BASE_URL" required:"true"`
	APIKey       string        `envconfig:"LUMENFOLIO_MEDIA_STORE_API_KEY"`
	Timeout      time.Duration `envconfig:"LUMENFOLIO_MEDIA_STORE_TIMEOUT" default:"30s"`
	MaxUploadMB  int           `envconfig:"LUMENFOLIO_MEDIA_MAX_UPLOAD_MB" default:"200"`
	UploadFolder string        `envconfig:"LUMENFOLIO_MEDIA_UPLOAD_FOLDER" default:"portal"`
}

type MailerConfig struct {
	BaseURL     string        `envconfig:"LUMENFOLIO_MAILER_BASE_URL"`
	APIKey      string        `envconfig:"LUMENFOLIO_MAILER_API_KEY"`
	DefaultFrom string        `envconfig:"LUMENFOLIO_MAILER_FROM_EMAIL"`
	AdminEmail  string        `envconfig:"LUMENFOLIO_MAILER_ADMIN_EMAIL"`
	Timeout     time.Duration `envconfig:"LUMENFOLIO_MAILER_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LUMENFOLIO_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventsTopic        string        `envconfig:"LUMENFOLIO_PUBSUB_EVENTS_TOPIC" default:"portal-engagement-events"`
	EventsSubscription string        `envconfig:"LUMENFOLIO_PUBSUB_EVENTS_SUBSCRIPTION" default:"portal-engagement-events-writer"`
	PublishTimeout     time.Duration `envconfig:"LUMENFOLIO_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
	IdempotencyTTL     time.Duration `envconfig:"LUMENFOLIO_PUBSUB_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LUMENFOLIO_AUTO_MIGRATE" default:"false"`
}

// AdminConfig carries the single back-office account. The portal is a
// single-owner product; there is no user table.
type AdminConfig struct {
	Email        string `envconfig:"LUMENFOLIO_ADMIN_EMAIL" required:"true"`
	PasswordHash string `envconfig:"LUMENFOLIO_ADMIN_PASSWORD_HASH" required:"true"`
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
