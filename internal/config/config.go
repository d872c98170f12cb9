package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Redis. Empty means the in-memory single-process backend.
	RedisURL string

	// Admin
	AdminToken string

	// CORS
	CORSAllowedOrigins []string

	// Chat limits
	MaxMessageLength int
	MaxImageBytes    int
	AliasMinLength   int
	AliasMaxLength   int

	// Room lifetime
	IdleTimeout        time.Duration
	MaxSessionDuration time.Duration

	// Background work
	SweepInterval       time.Duration
	MetricsPushInterval time.Duration
	MatchWorkers        int
}

func Load() (*Config, error) {
	// Load .env if present
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		RedisURL:            getEnv("REDIS_URL", ""),
		AdminToken:          getEnv("ADMIN_TOKEN", "dev-admin-token"),
		CORSAllowedOrigins:  splitOrigins(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		MaxMessageLength:    getEnvInt("MAX_MESSAGE_LENGTH", 500),
		MaxImageBytes:       getEnvInt("MAX_IMAGE_BYTES", 1_000_000),
		AliasMinLength:      getEnvInt("ALIAS_MIN_LENGTH", 2),
		AliasMaxLength:      getEnvInt("ALIAS_MAX_LENGTH", 24),
		IdleTimeout:         time.Duration(getEnvInt("IDLE_TIMEOUT_SEC", 60)) * time.Second,
		MaxSessionDuration:  time.Duration(getEnvInt("MAX_SESSION_SEC", 900)) * time.Second,
		SweepInterval:       parseDuration(getEnv("SWEEP_INTERVAL", "15s"), 15*time.Second),
		MetricsPushInterval: parseDuration(getEnv("METRICS_PUSH_INTERVAL", "2s"), 2*time.Second),
		MatchWorkers:        getEnvInt("MATCH_WORKERS", 20),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
