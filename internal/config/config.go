// Package config loads the environment-driven settings shared by every
// FinPay service process.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the typed view of the recognized configuration options from
// spec.md §6. Every service loads the same shape; unused fields for a given
// service are simply ignored.
type Config struct {
	ServiceName string

	ServerPort string

	KafkaBootstrapServers []string
	RedisURL              string
	PostgresDSN           string
	APIKey                string
	OrchestratorURL       string
	ProviderURL           string

	OTELExporterOTLPEndpoint string

	RiskVelocityPerHour        int
	RateLimitPerMinute         int
	IdempotencyTTLSeconds      int
	RiskReviewAmountCents      int
	RiskDenyFrequencyThreshold int

	LogLevel string
}

// Load reads configuration from the environment (optionally seeded from a
// `.env` file, same as the teacher's dev workflow) applying the defaults
// documented in spec.md §6.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: getEnv("SERVICE_NAME", serviceName),
		ServerPort:  getEnv("SERVER_PORT", "8080"),

		KafkaBootstrapServers: getEnvAsSlice("KAFKA_BOOTSTRAP_SERVERS", []string{"localhost:9092"}),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PostgresDSN:           getEnv("POSTGRES_DSN", ""),
		APIKey:                getEnv("API_KEY", ""),
		OrchestratorURL:       getEnv("ORCHESTRATOR_URL", "http://localhost:8001"),
		ProviderURL:           getEnv("PROVIDER_URL", "http://localhost:8003"),

		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		RiskVelocityPerHour:        getEnvAsInt("RISK_VELOCITY_PER_HOUR", 20),
		RateLimitPerMinute:         getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		IdempotencyTTLSeconds:      getEnvAsInt("IDEMPOTENCY_TTL_SECONDS", 86400),
		RiskReviewAmountCents:      getEnvAsInt("RISK_REVIEW_AMOUNT_CENTS", 100000),
		RiskDenyFrequencyThreshold: getEnvAsInt("RISK_DENY_FREQUENCY_THRESHOLD", 50),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// IdempotencyTTL returns the idempotency cache TTL as a duration.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	out := []string{}
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				out = append(out, value[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
