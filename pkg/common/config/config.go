package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers     []string
	VideoEventsTopic string

	// Cloudflare Stream
	StreamAccountID      string
	StreamAPIToken       string
	StreamCustomerCode   string
	StreamWebhookSecret  string
	StreamAllowedOrigins []string
	StreamAPIBaseURL     string
	StreamAPITimeout     time.Duration
	PlaybackTokenTTL     time.Duration

	// Access control
	AdminEmails      []string
	IngestAPIToken   string
	SessionJWTSecret string
	SessionJWTIssuer string

	// Catalog
	SeriesCatalogPath string

	RateLimitRPS   int
	RateLimitBurst int
}

const defaultPlaybackTokenTTLSeconds = 900

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "outerfields"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "outerfields"),
		PostgresDB:       getEnv("POSTGRES_DB", "outerfields"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", nil),
		VideoEventsTopic: getEnv("VIDEO_EVENTS_TOPIC", "video-lifecycle"),

		StreamAccountID:      getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		StreamAPIToken:       getEnv("CLOUDFLARE_STREAM_API_TOKEN", ""),
		StreamCustomerCode:   getEnv("CLOUDFLARE_STREAM_CUSTOMER_CODE", ""),
		StreamWebhookSecret:  getEnv("CLOUDFLARE_STREAM_WEBHOOK_SECRET", ""),
		StreamAllowedOrigins: getStringSliceEnv("CLOUDFLARE_STREAM_ALLOWED_ORIGINS", nil),
		StreamAPIBaseURL:     getEnv("CLOUDFLARE_API_BASE_URL", "https://api.cloudflare.com/client/v4"),
		StreamAPITimeout:     getDuration("STREAM_API_TIMEOUT", 15*time.Second),
		PlaybackTokenTTL:     getSecondsEnv("VIDEO_STREAM_TOKEN_TTL_SECONDS", defaultPlaybackTokenTTLSeconds),

		AdminEmails:      adminEmails(),
		IngestAPIToken:   getEnv("VIDEO_INGEST_API_TOKEN", ""),
		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),
		SessionJWTIssuer: getEnv("SESSION_JWT_ISSUER", "outerfields"),

		SeriesCatalogPath: getEnv("SERIES_CATALOG_PATH", ""),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

// adminEmails prefers VIDEO_ADMIN_EMAILS and falls back to the older
// VIDEO_SERIES_ADMIN_EMAILS name.
func adminEmails() []string {
	if v := getStringSliceEnv("VIDEO_ADMIN_EMAILS", nil); len(v) > 0 {
		return v
	}
	return getStringSliceEnv("VIDEO_SERIES_ADMIN_EMAILS", nil)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getSecondsEnv reads a whole number of seconds; non-positive or unparsable
// values fall back to the default.
func getSecondsEnv(key string, defaultSeconds int) time.Duration {
	seconds := getIntEnv(key, defaultSeconds)
	if seconds <= 0 {
		seconds = defaultSeconds
	}
	return time.Duration(seconds) * time.Second
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
