package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "careerlink"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CAREERLINK_DB_DSN"
	EnvDBHost = "CAREERLINK_DB_HOST"
	EnvDBUser = "CAREERLINK_DB_USER"
	EnvDBName = "CAREERLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Payments     PaymentsConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	Env          string `envconfig:"CAREERLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"CAREERLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CAREERLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CAREERLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CAREERLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CAREERLINK_DB_DSN"`
	Driver string `envconfig:"CAREERLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAREERLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"CAREERLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAREERLINK_DB_USER"`
	LegacyPassword string `envconfig:"CAREERLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAREERLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAREERLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAREERLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAREERLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAREERLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAREERLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAREERLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CAREERLINK_REDIS_ADDR"`
	Password     string        `envconfig:"CAREERLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAREERLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAREERLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAREERLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAREERLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAREERLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAREERLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"CAREERLINK_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CAREERLINK_JWT_ISSUER" default:"careerlink"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CAREERLINK_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CAREERLINK_STRIPE_API_KEY"`
	Secret string `envconfig:"CAREERLINK_STRIPE_SECRET"`
	Env    string `envconfig:"CAREERLINK_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// PaymentsConfig carries the business rules of the payment lifecycle.
type PaymentsConfig struct {
	SessionTTL       time.Duration `envconfig:"CAREERLINK_PAYMENTS_SESSION_TTL" default:"30m"`
	RefundWindowDays int           `envconfig:"CAREERLINK_PAYMENTS_REFUND_WINDOW_DAYS" default:"15"`
	MaxJobLimit      int           `envconfig:"CAREERLINK_PAYMENTS_MAX_JOB_LIMIT" default:"5"`
	MaxPostLimit     int           `envconfig:"CAREERLINK_PAYMENTS_MAX_POST_LIMIT" default:"5"`
	Currency         string        `envconfig:"CAREERLINK_PAYMENTS_CURRENCY" default:"usd"`
	SuccessURL       string        `envconfig:"CAREERLINK_PAYMENTS_SUCCESS_URL" required:"true"`
	CancelURL        string        `envconfig:"CAREERLINK_PAYMENTS_CANCEL_URL" required:"true"`
}

type CronConfig struct {
	FrequentInterval time.Duration `envconfig:"CAREERLINK_CRON_FREQUENT_INTERVAL" default:"10m"`
	PeriodicInterval time.Duration `envconfig:"CAREERLINK_CRON_PERIODIC_INTERVAL" default:"720h"`
	ReconcileBatch   int           `envconfig:"CAREERLINK_CRON_RECONCILE_BATCH" default:"100"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CAREERLINK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"CAREERLINK_PUBSUB_NOTIFICATION_TOPIC" default:"cl-notification-events"`
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
