package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	HTTPHost    string
	HTTPPort    int
	Storage     StorageConfig
	RabbitMQ    RabbitMQConfig
	Session     SessionConfig
	API         APIConfig
	Validation  ValidationConfig
	Anomaly     AnomalyConfig
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	// Backend is one of "memory", "redis", "postgres".
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings. The consumer
// only runs when Enabled is true.
type RabbitMQConfig struct {
	Enabled          bool
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	EventsExchange   string
	EventsRoutingKey string
	DLQQueue         string
	PrefetchCount    int
}

// SessionConfig holds session token and inactivity settings.
type SessionConfig struct {
	JWTSecret     string
	JWTIssuer     string
	TokenTTL      time.Duration
	IdleTimeout   time.Duration
	CheckInterval time.Duration
}

// APIConfig holds HTTP-facing settings.
type APIConfig struct {
	// SimulatedLatency is the artificial delay applied to every store
	// operation.
	SimulatedLatency time.Duration
	RateLimitPerSec  float64
	RateLimitBurst   int
	MaxConcurrent    int64
}

// ValidationConfig holds submission validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// AnomalyConfig holds anomaly detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "si-releves"),
		HTTPHost:    getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort:    getEnvAsInt("HTTP_PORT", 8080),
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			DatabaseURL:   getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:          getEnvAsBool("RABBITMQ_ENABLED", false),
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "si-releves.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "si-releves.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "meter.reading.submitted"),
			EventsExchange:   getEnv("RABBITMQ_EVENTS_EXCHANGE", "si-releves.events.exchange"),
			EventsRoutingKey: getEnv("RABBITMQ_EVENTS_ROUTING_KEY", "meter.reading.accepted"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "si-releves.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Session: SessionConfig{
			JWTSecret:     getEnv("SESSION_JWT_SECRET", ""),
			JWTIssuer:     getEnv("SESSION_JWT_ISSUER", "si-releves"),
			TokenTTL:      getEnvAsDuration("SESSION_TOKEN_TTL", 12*time.Hour),
			IdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
			CheckInterval: getEnvAsDuration("SESSION_CHECK_INTERVAL", 30*time.Second),
		},
		API: APIConfig{
			SimulatedLatency: time.Duration(getEnvAsInt("API_LATENCY_MS", 300)) * time.Millisecond,
			RateLimitPerSec:  getEnvAsFloat("API_RATE_LIMIT_PER_SEC", 50),
			RateLimitBurst:   getEnvAsInt("API_RATE_LIMIT_BURST", 100),
			MaxConcurrent:    int64(getEnvAsInt("API_MAX_CONCURRENT", 64)),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
		},
	}

	// Validate required fields
	switch cfg.Storage.Backend {
	case "memory":
	case "redis":
		if cfg.Storage.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when STORAGE_BACKEND=redis")
		}
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (expected memory, redis or postgres)", cfg.Storage.Backend)
	}
	if cfg.RabbitMQ.Enabled && cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required when RABBITMQ_ENABLED=true")
	}
	if cfg.Session.JWTSecret == "" {
		return nil, fmt.Errorf("SESSION_JWT_SECRET is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
