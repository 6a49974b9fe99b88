package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Queue     QueueConfig     `koanf:"queue"`
	Matching  MatchingConfig  `koanf:"matching"`
	Worker    WorkerConfig    `koanf:"worker"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	NATS      NATSConfig      `koanf:"nats"`
	JWT       JWTConfig       `koanf:"jwt"`
}

type AppConfig struct {
	AppName     string `koanf:"name"`
	Environment string `koanf:"env"`
	HTTPPort    string `koanf:"http_port"`
	OpsPort     string `koanf:"ops_port"`
	// WSOrigins lists the Origin headers accepted on /ws; empty accepts any.
	WSOrigins []string `koanf:"ws_origins"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type DatabaseConfig struct {
	DBHost     string `koanf:"host"`
	DBPort     string `koanf:"port"`
	DBName     string `koanf:"name"`
	DBUser     string `koanf:"user"`
	DBPassword string `koanf:"password"`
	DBSSLMode  string `koanf:"ssl_mode"`

	ConnectTimeout        time.Duration `koanf:"connect_timeout"`
	PoolMaxConns          int32         `koanf:"pool_max_conns"`
	PoolMinConns          int32         `koanf:"pool_min_conns"`
	PoolMaxConnLifetime   time.Duration `koanf:"pool_max_conn_lifetime"`
	PoolMaxConnIdleTime   time.Duration `koanf:"pool_max_conn_idle_time"`
	PoolHealthCheckPeriod time.Duration `koanf:"pool_health_check_period"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

type QueueConfig struct {
	Name             string        `koanf:"name"`
	Attempts         int           `koanf:"attempts"`
	BackoffDelay     time.Duration `koanf:"backoff_delay"`
	KeepCompleted    int           `koanf:"keep_completed"`
	KeepFailed       int           `koanf:"keep_failed"`
	LockDuration     time.Duration `koanf:"lock_duration"`
	StalledInterval  time.Duration `koanf:"stalled_interval"`
	DrainDelay       time.Duration `koanf:"drain_delay"`
	BreakerFailures  uint32        `koanf:"breaker_failures"`
	BreakerOpenDelay time.Duration `koanf:"breaker_open_delay"`
}

type MatchingConfig struct {
	ScanCooldown time.Duration `koanf:"scan_cooldown"`
	MinScore     int           `koanf:"min_score"`
	MaxPoolSize  int           `koanf:"max_pool_size"`
}

type WorkerConfig struct {
	ID string `koanf:"id"`
}

type SchedulerConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Cron      string `koanf:"cron"`
	BatchSize int    `koanf:"batch_size"`
}

type NATSConfig struct {
	URL  string `koanf:"url"`
	Name string `koanf:"name"`
}

type JWTConfig struct {
	AccessSecret string `koanf:"access_secret"`
	Issuer       string `koanf:"issuer"`
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

// envKeys maps environment variables to config paths. Variables not listed
// here are ignored.
var envKeys = map[string]string{
	"APP_NAME":   "app.name",
	"APP_ENV":    "app.env",
	"HTTP_PORT":  "app.http_port",
	"OPS_PORT":   "app.ops_port",
	"WS_ORIGINS": "app.ws_origins",

	"LOG_LEVEL":  "log.level",
	"LOG_FORMAT": "log.format",
	"LOG_CALLER": "log.caller",

	"DB_HOST":                     "database.host",
	"DB_PORT":                     "database.port",
	"DB_NAME":                     "database.name",
	"DB_USER":                     "database.user",
	"DB_PASSWORD":                 "database.password",
	"DB_SSL_MODE":                 "database.ssl_mode",
	"DB_CONNECT_TIMEOUT":          "database.connect_timeout",
	"DB_POOL_MAX_CONNS":           "database.pool_max_conns",
	"DB_POOL_MIN_CONNS":           "database.pool_min_conns",
	"DB_POOL_MAX_CONN_LIFETIME":   "database.pool_max_conn_lifetime",
	"DB_POOL_MAX_CONN_IDLE_TIME":  "database.pool_max_conn_idle_time",
	"DB_POOL_HEALTH_CHECK_PERIOD": "database.pool_health_check_period",

	"REDIS_ADDR":      "redis.addr",
	"REDIS_PASSWORD":  "redis.password",
	"REDIS_DB":        "redis.db",
	"REDIS_POOL_SIZE": "redis.pool_size",

	"QUEUE_NAME":               "queue.name",
	"QUEUE_ATTEMPTS":           "queue.attempts",
	"QUEUE_BACKOFF_DELAY":      "queue.backoff_delay",
	"QUEUE_KEEP_COMPLETED":     "queue.keep_completed",
	"QUEUE_KEEP_FAILED":        "queue.keep_failed",
	"QUEUE_LOCK_DURATION":      "queue.lock_duration",
	"QUEUE_STALLED_INTERVAL":   "queue.stalled_interval",
	"QUEUE_DRAIN_DELAY":        "queue.drain_delay",
	"QUEUE_BREAKER_FAILURES":   "queue.breaker_failures",
	"QUEUE_BREAKER_OPEN_DELAY": "queue.breaker_open_delay",

	"MATCHING_SCAN_COOLDOWN": "matching.scan_cooldown",
	"MATCHING_MIN_SCORE":     "matching.min_score",
	"MATCHING_MAX_POOL_SIZE": "matching.max_pool_size",

	"WORKER_ID": "worker.id",

	"SCHEDULER_ENABLED":    "scheduler.enabled",
	"SCHEDULER_CRON":       "scheduler.cron",
	"SCHEDULER_BATCH_SIZE": "scheduler.batch_size",

	"NATS_URL":  "nats.url",
	"NATS_NAME": "nats.name",

	"JWT_ACCESS_SECRET": "jwt.access_secret",
	"JWT_ISSUER":        "jwt.issuer",
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{
			AppName:     "matchengine",
			Environment: "development",
			HTTPPort:    "8080",
			OpsPort:     "9090",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			DBPort:                "5432",
			DBSSLMode:             "disable",
			ConnectTimeout:        5 * time.Second,
			PoolMaxConns:          10,
			PoolMinConns:          1,
			PoolMaxConnLifetime:   time.Hour,
			PoolMaxConnIdleTime:   30 * time.Minute,
			PoolHealthCheckPeriod: time.Minute,
		},
		Redis: RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		Queue: QueueConfig{
			Name:             "matching",
			Attempts:         2,
			BackoffDelay:     5 * time.Second,
			KeepCompleted:    100,
			KeepFailed:       50,
			LockDuration:     10 * time.Minute,
			StalledInterval:  60 * time.Second,
			DrainDelay:       5 * time.Second,
			BreakerFailures:  5,
			BreakerOpenDelay: 30 * time.Second,
		},
		Matching: MatchingConfig{
			ScanCooldown: 7 * 24 * time.Hour,
			MinScore:     50,
			MaxPoolSize:  5000,
		},
		Scheduler: SchedulerConfig{Enabled: false, Cron: "0 3 * * *", BatchSize: 200},
		NATS:      NATSConfig{Name: "matchengine"},
		JWT:       JWTConfig{Issuer: "matchengine"},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_PATH, and the environment, in that order of precedence.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envTransform(key string) string {
	return envKeys[strings.ToUpper(key)]
}

func (c Config) validate() error {
	var missing []string
	req := func(key, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}

	req("DB_HOST", c.Database.DBHost)
	req("DB_NAME", c.Database.DBName)
	req("DB_USER", c.Database.DBUser)
	req("REDIS_ADDR", c.Redis.Addr)
	req("HTTP_PORT", c.App.HTTPPort)

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	if c.Queue.Attempts < 1 {
		return fmt.Errorf("QUEUE_ATTEMPTS must be at least 1, got %d", c.Queue.Attempts)
	}
	if c.Matching.MinScore < 0 || c.Matching.MinScore > 100 {
		return fmt.Errorf("MATCHING_MIN_SCORE must be within 0..100, got %d", c.Matching.MinScore)
	}
	return nil
}

// RequireJWT reports whether the token secret needed by the HTTP API is set.
func (c Config) RequireJWT() error {
	if strings.TrimSpace(c.JWT.AccessSecret) == "" {
		return fmt.Errorf("%w: JWT_ACCESS_SECRET", errMissingRequiredEnv)
	}
	return nil
}
