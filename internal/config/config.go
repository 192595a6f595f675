package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration for a worker process
// (subscription-service or payment-service side). Both binaries load the
// same struct; unused sections are simply left at their defaults.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Webhook  WebhookConfig
	Queue    QueueConfig
	Logger   LoggerConfig
	Gateway  GatewayConfig
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds the queue/lock/usage-meter substrate configuration.
type RedisConfig struct {
	URL         string
	MaxConns    int
	DialTimeout time.Duration
}

// WebhookConfig holds HMAC signing/verification and outbound delivery
// settings shared by C7 and C8.
type WebhookConfig struct {
	SigningSecret    string
	ToleranceSeconds int
	TimeoutSeconds   int
	SubscriptionURL  string // base URL the payment side POSTs subscription updates to
	ServiceJWTSecret string
	AppName          string
	AppVersion       string
}

// QueueConfig holds defaults for the delayed-queue pump and visibility
// sweeper cadence; per-queue retry/backoff policy lives in package queue.
type QueueConfig struct {
	PumpInterval    time.Duration
	SweepInterval   time.Duration
	WorkersPerQueue int
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// GatewayConfig holds the simulated payment gateway's tuning knobs: success
// card, success rate, and min/max delay (as durations). The fail card is
// not configurable; it is a fixed constant in package gateway.
type GatewayConfig struct {
	SuccessCardLastFour string
	SuccessRate         float64
	MinDelay            time.Duration
	MaxDelay            time.Duration
}

// LoadFromEnv loads configuration from environment variables, failing
// fast on anything required but missing.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "billing"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
			MaxConns:    getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Webhook: WebhookConfig{
			SigningSecret:    getEnv("WEBHOOK_SIGNING_SECRET", ""),
			ToleranceSeconds: getEnvAsInt("WEBHOOK_TOLERANCE_SECONDS", 300),
			TimeoutSeconds:   getEnvAsInt("WEBHOOK_TIMEOUT_SECONDS", 30),
			SubscriptionURL:  getEnv("SUBSCRIPTION_SERVICE_URL", "http://localhost:8000"),
			ServiceJWTSecret: getEnv("JWT_SECRET_KEY", ""),
			AppName:          getEnv("APP_NAME", "billing-pipeline"),
			AppVersion:       getEnv("APP_VERSION", "0.1.0"),
		},
		Queue: QueueConfig{
			PumpInterval:    getEnvAsDuration("QUEUE_PUMP_INTERVAL", 5*time.Second),
			SweepInterval:   getEnvAsDuration("QUEUE_SWEEP_INTERVAL", 20*time.Second),
			WorkersPerQueue: getEnvAsInt("QUEUE_WORKERS_PER_QUEUE", 2),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Gateway: GatewayConfig{
			SuccessCardLastFour: getEnv("PAYMENT_GATEWAY_SUCCESS_CARD_LAST_FOUR", "4242"),
			SuccessRate:         getEnvAsFloat("GATEWAY_SUCCESS_RATE", 0.85),
			MinDelay:            getEnvAsDuration("GATEWAY_MIN_DELAY", 50*time.Millisecond),
			MaxDelay:            getEnvAsDuration("GATEWAY_MAX_DELAY", 300*time.Millisecond),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Webhook.SigningSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SIGNING_SECRET is required")
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

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
