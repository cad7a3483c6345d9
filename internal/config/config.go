// Package config loads worker configuration from the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything a channel worker needs to start.
type Config struct {
	// Broker
	BrokerURL     string
	QueueName     string
	DLQRoutingKey string
	PrefetchCount int

	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache
	CacheURL        string
	CacheTTLSeconds int

	// Collaborators
	UserServiceURL     string
	TemplateServiceURL string
	GatewayURL         string

	// Provider
	Provider string // "smtp" | "http-email-api" | "http-push-api"

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPTLSMode  string // "starttls" | "implicit"

	HTTPEmailAPIURL string
	HTTPEmailAPIKey string
	HTTPEmailFrom   string

	HTTPPushAPIURL string
	HTTPPushAPIKey string

	// Retry
	MaxRetryAttempts int
	RetryMinWait     time.Duration
	RetryMaxWait     time.Duration
	RetryMultiplier  float64

	// Breaker
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration

	// Misc
	HTTPTimeout time.Duration
	WebhookAddr string

	SentryDSN         string
	SentryEnvironment string
}

// Load reads configuration from the environment with the defaults this system ships.
func Load(channel string) Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg := Config{
		QueueName:     envOr("QUEUE_NAME", channel),
		DLQRoutingKey: envOr("DLQ_ROUTING_KEY", channel+".dlq"),
		PrefetchCount: envInt("PREFETCH_COUNT", 10),

		DatabaseURL:    os.Getenv("DB_URL"),
		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: envInt("DB_MAX_IDLE_CONNS", 5),

		CacheURL:        envOr("CACHE_URL", "redis://localhost:6379/0"),
		CacheTTLSeconds: envInt("CACHE_TTL_SECONDS", 300),

		UserServiceURL:     os.Getenv("USER_SERVICE_URL"),
		TemplateServiceURL: os.Getenv("TEMPLATE_SERVICE_URL"),
		GatewayURL:         os.Getenv("GATEWAY_URL"),

		Provider: envOr("PROVIDER", defaultProvider(channel)),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPTLSMode:  envOr("SMTP_TLS_MODE", "starttls"),

		HTTPEmailAPIURL: os.Getenv("HTTP_EMAIL_API_URL"),
		HTTPEmailAPIKey: os.Getenv("HTTP_EMAIL_API_KEY"),
		HTTPEmailFrom:   os.Getenv("HTTP_EMAIL_FROM"),

		HTTPPushAPIURL: os.Getenv("HTTP_PUSH_API_URL"),
		HTTPPushAPIKey: os.Getenv("HTTP_PUSH_API_KEY"),

		MaxRetryAttempts: envInt("MAX_RETRY_ATTEMPTS", 3),
		RetryMinWait:     envSeconds("RETRY_MIN_WAIT", 1),
		RetryMaxWait:     envSeconds("RETRY_MAX_WAIT", 10),
		RetryMultiplier:  envFloat("RETRY_MULTIPLIER", 2.0),

		BreakerFailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerOpenTimeout:      envSeconds("BREAKER_OPEN_TIMEOUT", 60),

		HTTPTimeout: envSeconds("HTTP_TIMEOUT", 30),
		WebhookAddr: envOr("WEBHOOK_ADDR", ":8080"),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: envOr("SENTRY_ENVIRONMENT", "development"),
	}

	cfg.BrokerURL = os.Getenv("BROKER_URL")

	return cfg
}

func defaultProvider(channel string) string {
	if channel == "push" {
		return "http-push-api"
	}
	return "smtp"
}

// Validate checks the required fields per spec §6.
func (c Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("BROKER_URL is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.UserServiceURL == "" {
		return fmt.Errorf("USER_SERVICE_URL is required")
	}
	if c.TemplateServiceURL == "" {
		return fmt.Errorf("TEMPLATE_SERVICE_URL is required")
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func envSeconds(key string, fallbackSeconds int) time.Duration {
	n := envInt(key, fallbackSeconds)
	return time.Duration(n) * time.Second
}
