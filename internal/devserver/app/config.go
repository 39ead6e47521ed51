package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer string // Optional: issuer claim for tokens (default: tabsession-dev)
	KeyID  string // Optional: kid header on signed tokens (default: dev-1)

	KeyFile              string        // Optional: PEM Ed25519 key, generated when missing; empty means ephemeral
	Pepper               string        // Optional: pepper mixed into password hashes
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	AccessTTL            time.Duration // Access token lifetime (default: 15m)
	RefreshTTL           time.Duration // Refresh token lifetime (default: 7d)

	SeedUser SeedUser
}

// SeedUser is the account created at startup so the service is usable
// without a signup flow.
type SeedUser struct {
	Username    string
	Password    string
	DisplayName string
	Email       string
	Authorities []string
	TOTPSecret  string // Optional: base32 secret enabling the second factor
}

// LoadConfig reads the environment, after merging a .env file from the
// working directory when one exists.
func LoadConfig() Config {
	// Missing .env is the normal case outside local development
	_ = godotenv.Load()

	return Config{
		Issuer:               getEnvOrDefault("DEV_ISSUER", "tabsession-dev"),
		KeyID:                getEnvOrDefault("DEV_KEY_ID", "dev-1"),
		KeyFile:              os.Getenv("DEV_KEY_FILE"),
		Pepper:               os.Getenv("DEV_PEPPER"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		AccessTTL:            getEnvDurationOrDefault("DEV_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:           getEnvDurationOrDefault("DEV_REFRESH_TTL", 7*24*time.Hour),
		SeedUser: SeedUser{
			Username:    getEnvOrDefault("DEV_USER", "demo"),
			Password:    getEnvOrDefault("DEV_PASSWORD", "demo"),
			DisplayName: getEnvOrDefault("DEV_DISPLAY_NAME", "Demo User"),
			Email:       os.Getenv("DEV_EMAIL"),
			Authorities: getEnvListOrDefault("DEV_AUTHORITIES", []string{"ROLE_USER"}),
			TOTPSecret:  os.Getenv("DEV_TOTP_SECRET"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
