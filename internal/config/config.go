package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Queue     QueueConfig
	Retry     RetryConfig
	Estimator EstimatorConfig
	Outbox    OutboxConfig
	Events    EventsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN                   string
	MaxConns              int32
	MinConns              int32
	RunMigrations         bool
	MigrationsDir         string
	ConnMaxIdleSec        int32
	ConnMaxLifeSec        int32
	StorageTimeoutSeconds int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled            bool
	Addr               string
	Password           string
	DB                 int
	DialTimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
	Env     string
}

// AuthConfig defines bearer token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// QueueConfig holds queue admission defaults.
type QueueConfig struct {
	DefaultTimezone  string
	SequenceBackend  string
	SequenceTTLHours int
}

// RetryConfig bounds retries of concurrency conflicts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelayMs int
}

// EstimatorConfig tunes wait time estimation.
type EstimatorConfig struct {
	SampleSize   int
	LookbackDays int
}

// OutboxConfig drives the event relay.
type OutboxConfig struct {
	Schedule       string
	BatchSize      int
	MaxAttempts    int
	RetentionHours int
	PurgeSchedule  string
}

// EventsConfig names the Redis sinks for published events.
type EventsConfig struct {
	Stream        string
	StreamMaxLen  int64
	ChannelPrefix string
}

const (
	SequenceBackendStore = "store"
	SequenceBackendRedis = "redis"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "queue-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:                   os.Getenv("POSTGRES_DSN"),
			MaxConns:              maxConns,
			MinConns:              minConns,
			RunMigrations:         runMigrations,
			MigrationsDir:         getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:        connMaxIdle,
			ConnMaxLifeSec:        connMaxLife,
			StorageTimeoutSeconds: getEnvAsInt("STORAGE_TIMEOUT_SECONDS", 5),
		},
		Redis: RedisConfig{
			Enabled:            getEnvAsBool("REDIS_ENABLED", true),
			Addr:               getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:           os.Getenv("REDIS_PASSWORD"),
			DB:                 redisDB,
			DialTimeoutSeconds: getEnvAsInt("REDIS_DIAL_TIMEOUT_SECONDS", 3),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Queue: QueueConfig{
			DefaultTimezone:  getEnv("QUEUE_DEFAULT_TIMEZONE", "UTC"),
			SequenceBackend:  strings.ToLower(getEnv("QUEUE_SEQUENCE_BACKEND", SequenceBackendStore)),
			SequenceTTLHours: getEnvAsInt("QUEUE_SEQUENCE_TTL_HOURS", 48),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelayMs: getEnvAsInt("RETRY_BASE_DELAY_MS", 20),
		},
		Estimator: EstimatorConfig{
			SampleSize:   getEnvAsInt("ESTIMATOR_SAMPLE_SIZE", 20),
			LookbackDays: getEnvAsInt("ESTIMATOR_LOOKBACK_DAYS", 30),
		},
		Outbox: OutboxConfig{
			Schedule:       getEnv("OUTBOX_SCHEDULE", "@every 2s"),
			BatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
			MaxAttempts:    getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
			RetentionHours: getEnvAsInt("OUTBOX_RETENTION_HOURS", 72),
			PurgeSchedule:  getEnv("OUTBOX_PURGE_SCHEDULE", "@hourly"),
		},
		Events: EventsConfig{
			Stream:        getEnv("EVENTS_STREAM", "queue:events"),
			StreamMaxLen:  int64(getEnvAsInt("EVENTS_STREAM_MAX_LEN", 100000)),
			ChannelPrefix: getEnv("EVENTS_CHANNEL_PREFIX", "queue:tenant"),
		},
	}

	cfg.Logger.Service = cfg.App.Name
	cfg.Logger.Env = cfg.App.Env

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Queue.SequenceBackend {
	case SequenceBackendStore, SequenceBackendRedis:
	default:
		return fmt.Errorf("invalid QUEUE_SEQUENCE_BACKEND %q", c.Queue.SequenceBackend)
	}
	if c.Queue.SequenceBackend == SequenceBackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("QUEUE_SEQUENCE_BACKEND=redis requires REDIS_ENABLED")
	}
	if _, err := time.LoadLocation(c.Queue.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid QUEUE_DEFAULT_TIMEZONE: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 1
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// StorageTimeout bounds every unit of work; zero disables the bound.
func (p PostgresConfig) StorageTimeout() time.Duration {
	if p.StorageTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.StorageTimeoutSeconds) * time.Second
}

// DialTimeout bounds connection attempts to Redis.
func (r RedisConfig) DialTimeout() time.Duration {
	if r.DialTimeoutSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(r.DialTimeoutSeconds) * time.Second
}

// Location resolves the default timezone, falling back to UTC.
func (q QueueConfig) Location() *time.Location {
	loc, err := time.LoadLocation(q.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BaseDelay returns the first retry backoff.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// Lookback returns the estimator sample window.
func (e EstimatorConfig) Lookback() time.Duration {
	return time.Duration(e.LookbackDays) * 24 * time.Hour
}

// Retention returns how long delivered outbox events are kept.
func (o OutboxConfig) Retention() time.Duration {
	return time.Duration(o.RetentionHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
