package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/scheduler-api/internal/email"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduler-api/internal/worker"
	"github.com/jwalitptl/scheduler-api/pkg/auth"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/messaging/redis"
)

// EnvPrefix prefixes every environment override, e.g. SCHEDULER_DATABASE_HOST.
const EnvPrefix = "scheduler"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server     ServerConfig                 `mapstructure:"server"`
	Database   DatabaseConfig               `mapstructure:"database"`
	JWT        auth.Config                  `mapstructure:"jwt"`
	Redis      redis.Config                 `mapstructure:"redis"`
	SMTP       email.Config                 `mapstructure:"smtp"`
	Log        logger.Config                `mapstructure:"log"`
	Scheduling SchedulingConfig             `mapstructure:"scheduling"`
	RateLimit  middleware.RateLimiterConfig `mapstructure:"rate_limit" split_words:"true"`
	Monitoring MonitoringConfig             `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port            int                   `mapstructure:"port"`
	Mode            string                `mapstructure:"mode"`
	RequestTimeout  time.Duration         `mapstructure:"request_timeout" split_words:"true"`
	ShutdownTimeout time.Duration         `mapstructure:"shutdown_timeout" split_words:"true"`
	MaxBodyBytes    int64                 `mapstructure:"max_body_bytes" split_words:"true"`
	HSTS            bool                  `mapstructure:"hsts"`
	CORS            middleware.CORSConfig `mapstructure:"cors"`
}

type DatabaseConfig struct {
	// Driver is postgres or memory.
	Driver          string `mapstructure:"driver"`
	postgres.Config `mapstructure:",squash"`
}

type SchedulingConfig struct {
	// Timezone is the IANA zone appointment times are interpreted in.
	Timezone        string             `mapstructure:"timezone"`
	ServiceCacheTTL time.Duration      `mapstructure:"service_cache_ttl" split_words:"true"`
	Sweep           worker.SweepConfig `mapstructure:"sweep"`
}

type MonitoringConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Location loads the scheduling timezone.
func (c SchedulingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduling timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors.max_age", 600)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scheduler")
	v.SetDefault("database.name", "scheduler")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("jwt.access_token_expiry", "24h")
	v.SetDefault("jwt.refresh_token_expiry", "168h")

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.service_cache_ttl", "5m")
	v.SetDefault("scheduling.sweep.interval", "15m")
	v.SetDefault("scheduling.sweep.retry_attempts", 3)
	v.SetDefault("scheduling.sweep.retry_delay", "5s")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rate", 5)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.idle_ttl", "10m")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.namespace", "scheduler")
}

// LoadConfig reads .env, then config.yml, then SCHEDULER_* environment
// variables, each layer overriding the previous one.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt.refresh_secret is required"))
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverMemory {
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if _, err := c.Scheduling.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
