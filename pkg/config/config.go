package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full application configuration, loaded from environment
// variables with sane development defaults. Secrets have no defaults.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Quota    QuotaConfig
	Billing  BillingConfig
	Notify   NotifyConfig
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Address returns host:port.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig configures session token issuance.
type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
	Issuer     string
}

// QuotaConfig holds default API key usage limits per environment, with
// optional overrides keyed by plan tier.
type QuotaConfig struct {
	SandboxLimit    int64
	ProductionLimit int64
	PlanOverrides   map[string]PlanQuota
	Window          time.Duration
	CacheTTL        time.Duration
}

// PlanQuota overrides the default usage limits for one plan tier. A zero
// field falls through to the per-environment default.
type PlanQuota struct {
	SandboxLimit    int64
	ProductionLimit int64
}

// LimitFor resolves the usage limit for a plan and environment. A plan
// override wins over the per-environment default.
func (q QuotaConfig) LimitFor(plan string, production bool) int64 {
	if override, ok := q.PlanOverrides[plan]; ok {
		if production && override.ProductionLimit > 0 {
			return override.ProductionLimit
		}
		if !production && override.SandboxLimit > 0 {
			return override.SandboxLimit
		}
	}
	if production {
		return q.ProductionLimit
	}
	return q.SandboxLimit
}

// BillingConfig configures the external billing provider client.
type BillingConfig struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	RetryBudget time.Duration
}

// NotifyConfig configures operational alert delivery.
type NotifyConfig struct {
	Provider    string
	FromAddress string
	AWSRegion   string
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "gridcore"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "gridcore"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),
			Issuer:     getEnv("JWT_ISSUER", "gridcore"),
		},
		Quota: QuotaConfig{
			SandboxLimit:    int64(getEnvInt("QUOTA_SANDBOX_LIMIT", 1000)),
			ProductionLimit: int64(getEnvInt("QUOTA_PRODUCTION_LIMIT", 10000)),
			PlanOverrides:   loadPlanOverrides(),
			Window:          getEnvDuration("QUOTA_WINDOW", 30*24*time.Hour),
			CacheTTL:        getEnvDuration("QUOTA_CACHE_TTL", 5*time.Second),
		},
		Billing: BillingConfig{
			APIKey:      getEnv("BILLING_API_KEY", ""),
			BaseURL:     getEnv("BILLING_BASE_URL", "https://api.billing.example.com/v1"),
			Timeout:     getEnvDuration("BILLING_TIMEOUT", 10*time.Second),
			MaxRetries:  getEnvInt("BILLING_MAX_RETRIES", 3),
			RetryBudget: getEnvDuration("BILLING_RETRY_BUDGET", 30*time.Second),
		},
		Notify: NotifyConfig{
			Provider:    getEnv("NOTIFY_PROVIDER", "console"),
			FromAddress: getEnv("NOTIFY_FROM_ADDRESS", "noreply@gridworks.ai"),
			AWSRegion:   getEnv("NOTIFY_AWS_REGION", getEnv("AWS_REGION", "ap-south-1")),
		},
	}
}

// loadPlanOverrides reads per-plan limit overrides, e.g.
// QUOTA_ENTERPRISE_PRODUCTION_LIMIT=100000. Plans with no variable set keep
// the per-environment defaults.
func loadPlanOverrides() map[string]PlanQuota {
	overrides := make(map[string]PlanQuota)
	for _, plan := range []string{"professional", "enterprise", "uhnw"} {
		prefix := "QUOTA_" + strings.ToUpper(plan)
		override := PlanQuota{
			SandboxLimit:    int64(getEnvInt(prefix+"_SANDBOX_LIMIT", 0)),
			ProductionLimit: int64(getEnvInt(prefix+"_PRODUCTION_LIMIT", 0)),
		}
		if override.SandboxLimit > 0 || override.ProductionLimit > 0 {
			overrides[plan] = override
		}
	}
	return overrides
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
