package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBAutoMigrate      bool
	DBMaxConns         int
	RedisURL           string
	CORSAllowedOrigins []string

	PricingTaxRateBPS int
	PreviewDebounce   time.Duration
	PreviewTimeout    time.Duration

	ReportCacheTTL time.Duration
	IdempotencyTTL time.Duration
	BodyLimitBytes int64

	RateLimitBackend         string
	RateLimitCalculatePerMin int

	WorkerConcurrency int
	GSTRefreshCron    string
	LockTTL           time.Duration
	LockRetryBackoff  time.Duration

	RetryBase          time.Duration
	RetryMaxAttempts   int
	RetryJitterPercent float64
	OutboundTimeout    time.Duration
	BreakerMinRequests int
	BreakerFailureRate float64
	BreakerOpenFor     time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE")),
		DBMaxConns:         parseInt(k.String("DB_MAX_CONNS"), 10),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PricingTaxRateBPS: parseInt(k.String("PRICING_TAX_RATE_BPS"), 1800),
		PreviewDebounce:   parseDuration(k.String("PREVIEW_DEBOUNCE"), "300ms"),
		PreviewTimeout:    parseDuration(k.String("PREVIEW_TIMEOUT"), "5s"),

		ReportCacheTTL: parseDuration(k.String("REPORT_CACHE_TTL"), "5m"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes: int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		RateLimitBackend:         strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),
		RateLimitCalculatePerMin: parseInt(k.String("RATE_LIMIT_CALCULATE_PER_MIN"), 600),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
		GSTRefreshCron:    valueOrDefault(k.String("GST_REFRESH_CRON"), "@daily"),
		LockTTL:           parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff:  parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		RetryBase:          parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent: parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "2s"),
		BreakerMinRequests: parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRate: parseFloat(k.String("BREAKER_FAILURE_RATE"), 0.5),
		BreakerOpenFor:     parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
	}

	if cfg.PricingTaxRateBPS <= 0 || cfg.PricingTaxRateBPS > 10000 {
		return nil, fmt.Errorf("PRICING_TAX_RATE_BPS must be within 1..10000, got %d", cfg.PricingTaxRateBPS)
	}
	if cfg.PreviewDebounce < 300*time.Millisecond || cfg.PreviewDebounce > 500*time.Millisecond {
		return nil, fmt.Errorf("PREVIEW_DEBOUNCE must be between 300ms and 500ms, got %s", cfg.PreviewDebounce)
	}
	switch cfg.RateLimitBackend {
	case "sliding", "ulule", "off":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be sliding, ulule or off, got %q", cfg.RateLimitBackend)
	}
	if cfg.DBAutoMigrate && cfg.DatabaseURL == "" {
		return nil, errors.New("DB_AUTO_MIGRATE requires DATABASE_URL")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// UsesPostgres reports whether bills are stored in Postgres instead of memory.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
