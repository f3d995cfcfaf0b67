package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the core consumes.
type Config struct {
	Env        string
	ServerPort string

	DatabaseURL string

	RedisURL      string
	RedisPoolSize int
	QueuePrefix   string
	QueueTTL      time.Duration
	QueueMaxRetry int
	QueueBaseDelay time.Duration

	EncryptionKey string
	JWTSecret     string

	WhatsAppBridgeURL    string
	WhatsAppSystemNumber string
	WebhookBaseURL       string
	WebhookSecret        string
	BridgeTimeout        time.Duration

	MessageProcessorWorkers int
	HealthCheckInterval     time.Duration
	StaleProcessingTimeout  time.Duration
}

// Load reads .env (if present) and the process environment into a Config,
// applying the same default-then-warn pattern used across the rest of the
// service.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		Env:        os.Getenv("ENV"),
		ServerPort: os.Getenv("SERVER_PORT"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisURL:    os.Getenv("REDIS_URL"),
		QueuePrefix: os.Getenv("MESSAGE_QUEUE_PREFIX"),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		JWTSecret:     os.Getenv("SECRET_KEY"),

		WhatsAppBridgeURL:    os.Getenv("WHATSAPP_BRIDGE_URL"),
		WhatsAppSystemNumber: os.Getenv("WHATSAPP_SYSTEM_NUMBER"),
		WebhookBaseURL:       os.Getenv("WEBHOOK_BASE_URL"),
		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
	}

	cfg.RedisPoolSize = envInt("REDIS_POOL_SIZE", 10)
	cfg.QueueMaxRetry = envInt("MESSAGE_QUEUE_MAX_RETRIES", 3)
	cfg.QueueBaseDelay = time.Duration(envInt("MESSAGE_QUEUE_RETRY_DELAY", 60)) * time.Second
	cfg.QueueTTL = time.Duration(envInt("MESSAGE_QUEUE_TTL", 86400)) * time.Second
	cfg.MessageProcessorWorkers = envInt("MESSAGE_PROCESSOR_WORKERS", 3)
	cfg.BridgeTimeout = time.Duration(envInt("BRIDGE_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.HealthCheckInterval = time.Duration(envInt("HEALTH_CHECK_INTERVAL_SECONDS", 30)) * time.Second
	cfg.StaleProcessingTimeout = time.Duration(envInt("STALE_PROCESSING_THRESHOLD_MINUTES", 10)) * time.Minute

	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379"
	}
	if cfg.QueuePrefix == "" {
		cfg.QueuePrefix = "zapa:queue:"
	}
	if cfg.WhatsAppBridgeURL == "" {
		cfg.WhatsAppBridgeURL = "http://localhost:3000"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret-key-change-in-production"
		log.Println("⚠️ Using default SECRET_KEY. Set SECRET_KEY in production!")
	}
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = "development-encryption-key-change-in-production-32"
		log.Println("⚠️ Using default ENCRYPTION_KEY. Set ENCRYPTION_KEY in production!")
	}

	return cfg
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ invalid integer for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
