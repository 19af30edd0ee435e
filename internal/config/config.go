package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthJWTIssuer string

	Observability ObservabilityConfig

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
	DBAutoMigrate     bool

	Payment PaymentConfig
	Redis   RedisConfig
	Plans   PlanDefaults
}

// ObservabilityConfig carries the logging and OTLP export settings.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OTelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// PaymentConfig is injected into the billing gateway at construction.
type PaymentConfig struct {
	Provider      string
	APIKey        string
	WebhookSecret string
	APIBaseURL    string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
}

// RedisConfig is optional. An empty Addr disables checkout throttling and
// the shared plan-name cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	CheckoutLockTTL   time.Duration
	CheckoutRate      float64
	CheckoutBurst     int
	PlanNameCacheTTL  time.Duration
	PlanNameKeyPrefix string
}

// PlanDefaults seeds the plan catalog when no plans file is present.
type PlanDefaults struct {
	ProPriceRef        string
	EnterprisePriceRef string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "finora"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "finora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		Payment: PaymentConfig{
			Provider:      strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "stripe"))),
			APIKey:        strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			APIBaseURL:    strings.TrimSpace(getenv("STRIPE_API_BASE_URL", "")),
			SuccessURL:    getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
			CancelURL:     getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/billing/cancel"),
			Timeout:       getenvDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:              strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:          strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:                int(getenvInt64("REDIS_DB", 0)),
			CheckoutLockTTL:   getenvDuration("CHECKOUT_LOCK_TTL", 30*time.Second),
			CheckoutRate:      getenvFloat("CHECKOUT_RATE_PER_SECOND", 0.1),
			CheckoutBurst:     int(getenvInt64("CHECKOUT_BURST", 3)),
			PlanNameCacheTTL:  getenvDuration("PLAN_NAME_CACHE_TTL", 10*time.Minute),
			PlanNameKeyPrefix: getenv("PLAN_NAME_CACHE_PREFIX", "finora:plan_name:"),
		},
		Plans: PlanDefaults{
			ProPriceRef:        strings.TrimSpace(getenv("STRIPE_PRICE_PRO", "")),
			EnterprisePriceRef: strings.TrimSpace(getenv("STRIPE_PRICE_ENTERPRISE", "")),
		},
	}

	cfg.Observability = ObservabilityConfig{
		LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OTelEnabled:   getenvBool("OTEL_ENABLED", cfg.IsProduction()),
		OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("15s") or plain seconds ("15").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}
