package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends selectable via CACHE_BACKEND.
const (
	CacheBackendFile   = "file"
	CacheBackendSQLite = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feed polling.
	FeedURL      string
	FeedAPIKey   string
	FeedTimeout  time.Duration
	PollInterval time.Duration
	DefaultCity  string

	// Notification cache.
	CacheBackend string
	CachePath    string

	// Kafka fan-out of newly introduced notifications.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	// Best-effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedURL:      os.Getenv("FEED_URL"),
		FeedAPIKey:   os.Getenv("FEED_API_KEY"),
		FeedTimeout:  feedTimeout,
		PollInterval: pollInterval,
		DefaultCity:  envOrDefault("DEFAULT_CITY", "amsterdam"),

		CacheBackend: envOrDefault("CACHE_BACKEND", CacheBackendFile),
		CachePath:    envOrDefault("CACHE_PATH", defaultCachePath(envOrDefault("CACHE_BACKEND", CacheBackendFile))),

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "traffic-notifications"),
	}

	if cfg.FeedURL == "" {
		return nil, errors.New("FEED_URL is required")
	}
	if cfg.PollInterval < time.Second {
		return nil, errors.New("POLL_INTERVAL must be at least 1s")
	}
	if cfg.CacheBackend != CacheBackendFile && cfg.CacheBackend != CacheBackendSQLite {
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q (want %q or %q)",
			cfg.CacheBackend, CacheBackendFile, CacheBackendSQLite)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func defaultCachePath(backend string) string {
	if backend == CacheBackendSQLite {
		return "notifications.db"
	}
	return "notifications.json"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

func parseBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
