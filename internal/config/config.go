package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration for the phishscope server.
type Config struct {
	Environment         string
	Addr                string
	VirusTotalAPIKey    string
	URLScanAPIKey       string
	DatabaseURL         string
	MigrationsDir       string
	SessionTTL          time.Duration
	SessionCookieSecure bool
	APITokenSecret      string
	APITokenTTL         time.Duration
	RateLimitRedisAddr  string
	RateLimitRedisPass  string
	RateLimitRedisDB    int
}

// Load constructs a Config from environment variables.
//
// VIRUSTOTAL_API_KEY intentionally has no fallback: the server must not ship a
// working default credential.
func Load() Config {
	return Config{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                GetString("API_ADDR", ":8080"),
		VirusTotalAPIKey:    GetString("VIRUSTOTAL_API_KEY", ""),
		URLScanAPIKey:       GetString("URLSCAN_API_KEY", ""),
		DatabaseURL:         GetString("DATABASE_URL", ""),
		MigrationsDir:       GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		SessionTTL:          time.Duration(GetInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		SessionCookieSecure: GetBool("SESSION_COOKIE_SECURE", false),
		APITokenSecret:      GetString("API_TOKEN_SECRET", ""),
		APITokenTTL:         time.Duration(GetInt("API_TOKEN_TTL_MIN", 60)) * time.Minute,
		RateLimitRedisAddr:  GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:  GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:    GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
