package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "policyforge"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "POLICYFORGE_APP_ENV"
	EnvPort     = "POLICYFORGE_APP_PORT"
	EnvDBDSN    = "POLICYFORGE_DB_DSN"
	EnvDBHost   = "POLICYFORGE_DB_HOST"
	EnvDBUser   = "POLICYFORGE_DB_USER"
	EnvDBName   = "POLICYFORGE_DB_NAME"
	EnvRedisURL = "POLICYFORGE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Entitlements EntitlementsConfig
	Cron         CronConfig
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
	Env          string `envconfig:"POLICYFORGE_APP_ENV" required:"true"`
	Port         string `envconfig:"POLICYFORGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"POLICYFORGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POLICYFORGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POLICYFORGE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"POLICYFORGE_DB_DSN"`
	Driver string `envconfig:"POLICYFORGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POLICYFORGE_DB_HOST"`
	LegacyPort     int    `envconfig:"POLICYFORGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POLICYFORGE_DB_USER"`
	LegacyPassword string `envconfig:"POLICYFORGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"POLICYFORGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"POLICYFORGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POLICYFORGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POLICYFORGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POLICYFORGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POLICYFORGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"POLICYFORGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POLICYFORGE_REDIS_ADDR"`
	Password     string        `envconfig:"POLICYFORGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"POLICYFORGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POLICYFORGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POLICYFORGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POLICYFORGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POLICYFORGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POLICYFORGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"POLICYFORGE_AUTO_MIGRATE" default:"false"`
}

// EntitlementsConfig tunes the entitlement engine's ambient behavior.
type EntitlementsConfig struct {
	FreezeCacheTTL time.Duration `envconfig:"POLICYFORGE_FREEZE_CACHE_TTL" default:"30s"`
	FreezeCache    bool          `envconfig:"POLICYFORGE_FREEZE_CACHE" default:"false"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"POLICYFORGE_CRON_INTERVAL" default:"24h"`
	TrialSweepBatch  int           `envconfig:"POLICYFORGE_CRON_TRIAL_SWEEP_BATCH" default:"500"`
	LockTTL          time.Duration `envconfig:"POLICYFORGE_CRON_LOCK_TTL" default:"25h"`
	TrialSweepJitter time.Duration `envconfig:"POLICYFORGE_CRON_TRIAL_SWEEP_JITTER" default:"0s"`
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
