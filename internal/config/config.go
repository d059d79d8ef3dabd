package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Idempotency IdempotencyConfig
	Pipeline    PipelineConfig
	Alert       AlertConfig
	Gating      GatingConfig
	Invoice     InvoiceConfig
	Reconciler  ReconcilerConfig
	RateLimit   RateLimitConfig
}

// IdempotencyConfig controls the event admission window.
type IdempotencyConfig struct {
	WindowTTL time.Duration
	ClockSkew time.Duration
}

// PipelineConfig sizes the account-keyed worker pool.
type PipelineConfig struct {
	Workers   int
	QueueSize int
}

// AlertConfig controls low balance alerts and suspension.
type AlertConfig struct {
	GracePeriod time.Duration
}

// GatingConfig points at the collaborator that enforces service gating.
type GatingConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// InvoiceConfig controls invoice numbering and payment terms.
type InvoiceConfig struct {
	NumberPrefix string
	DueInDays    int
}

// ReconcilerConfig controls the background sweep of stuck ledger entries
// and overdue invoices.
type ReconcilerConfig struct {
	Interval           time.Duration
	ProcessingDeadline time.Duration
}

// RateLimitConfig throttles event ingestion per account.
type RateLimitConfig struct {
	Enabled      bool
	AccountRate  int
	AccountBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "tollgate"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		Idempotency: IdempotencyConfig{
			WindowTTL: getenvDuration("IDEMPOTENCY_WINDOW_TTL", 24*time.Hour),
			ClockSkew: getenvDuration("IDEMPOTENCY_CLOCK_SKEW", 5*time.Minute),
		},
		Pipeline: PipelineConfig{
			Workers:   int(getenvInt64("PIPELINE_WORKERS", 8)),
			QueueSize: int(getenvInt64("PIPELINE_QUEUE_SIZE", 1024)),
		},
		Alert: AlertConfig{
			GracePeriod: getenvDuration("ALERT_GRACE_PERIOD", 48*time.Hour),
		},
		Gating: GatingConfig{
			Endpoint: strings.TrimSpace(getenv("GATING_ENDPOINT", "")),
			Timeout:  getenvDuration("GATING_TIMEOUT", 5*time.Second),
		},
		Invoice: InvoiceConfig{
			NumberPrefix: getenv("INVOICE_NUMBER_PREFIX", "TG"),
			DueInDays:    int(getenvInt64("INVOICE_DUE_IN_DAYS", 14)),
		},
		Reconciler: ReconcilerConfig{
			Interval:           getenvDuration("RECONCILER_INTERVAL", time.Minute),
			ProcessingDeadline: getenvDuration("RECONCILER_PROCESSING_DEADLINE", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			AccountRate:  int(getenvInt64("RATE_LIMIT_ACCOUNT_RATE", 100)),
			AccountBurst: int(getenvInt64("RATE_LIMIT_ACCOUNT_BURST", 200)),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
