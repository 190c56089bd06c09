package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Ledger   LedgerConfig
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

// PostgresConfig holds DB connection values. An empty DSN disables the journal.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the relay.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// LedgerConfig tunes the lifecycle coordinator and its relays.
type LedgerConfig struct {
	ReplayOnStart        bool
	JournalTimeoutMillis int
	EventChannel         string
	StateKeyPrefix       string
	RejectionWindowHours int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "triage-ledger"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Ledger: LedgerConfig{
			ReplayOnStart:        getEnvAsBool("LEDGER_REPLAY_ON_START", true),
			JournalTimeoutMillis: getEnvAsInt("LEDGER_JOURNAL_TIMEOUT_MS", 2000),
			EventChannel:         getEnv("LEDGER_EVENT_CHANNEL", "triage-ledger:events"),
			StateKeyPrefix:       getEnv("LEDGER_STATE_KEY_PREFIX", "triage-ledger:state:"),
			RejectionWindowHours: getEnvAsInt("LEDGER_REJECTION_WINDOW_HOURS", 24),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := strconv.Atoi(c.App.Port); err != nil {
		errs = append(errs, fmt.Errorf("APP_PORT must be numeric: %q", c.App.Port))
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		errs = append(errs, fmt.Errorf("POSTGRES_MIN_CONNS (%d) exceeds POSTGRES_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns))
	}
	if c.Ledger.JournalTimeoutMillis < 0 {
		errs = append(errs, errors.New("LEDGER_JOURNAL_TIMEOUT_MS must not be negative"))
	}
	if c.Ledger.RejectionWindowHours <= 0 {
		errs = append(errs, errors.New("LEDGER_REJECTION_WINDOW_HOURS must be positive"))
	}
	if strings.TrimSpace(c.Ledger.EventChannel) == "" {
		errs = append(errs, errors.New("LEDGER_EVENT_CHANNEL is required"))
	}

	return errors.Join(errs...)
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

// JournalTimeout bounds a single journal write.
func (l LedgerConfig) JournalTimeout() time.Duration {
	return time.Duration(l.JournalTimeoutMillis) * time.Millisecond
}

// RejectionWindow is the default window of the rejection-rate projection.
func (l LedgerConfig) RejectionWindow() time.Duration {
	return time.Duration(l.RejectionWindowHours) * time.Hour
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
