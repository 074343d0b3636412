package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	PublicURL   string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Relay
	AllowedOrigins    []string // Empty allows any origin
	RoomIdleTTL       time.Duration
	RoomSweepInterval time.Duration
	MaxFrameBytes     int64
	FrameLimit        int // Chat and reaction frames per FrameWindow, per connection
	FrameWindow       time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations

	// PayU checkout
	PayUKey  string
	PayUSalt string
	PayUURL  string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		PublicURL:         getEnv("PUBLIC_URL", "http://localhost:8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        os.Getenv("SQLITE_PATH"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AllowedOrigins:    splitList(os.Getenv("ALLOWED_ORIGINS")),
		RoomIdleTTL:       getDuration("ROOM_IDLE_TTL", 10*time.Minute),
		RoomSweepInterval: getDuration("ROOM_SWEEP_INTERVAL", time.Minute),
		MaxFrameBytes:     getInt64("MAX_FRAME_BYTES", 64*1024),
		FrameLimit:        int(getInt64("WS_FRAME_LIMIT", 30)),
		FrameWindow:       getDuration("WS_FRAME_WINDOW", 10*time.Second),
		AutoBlockEnabled:  getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
		PayUKey:           os.Getenv("PAYU_KEY"),
		PayUSalt:          os.Getenv("PAYU_SALT"),
		PayUURL:           getEnv("PAYU_URL", "https://test.payu.in/_payment"),
	}

	cfg.RateLimitWhitelist = splitList(os.Getenv("RATE_LIMIT_WHITELIST"))

	// In production, require redis and an account store
	if cfg.Env == "production" {
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
			panic("DATABASE_URL or SQLITE_PATH is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// PaymentsEnabled reports whether PayU credentials are configured.
func (c *Config) PaymentsEnabled() bool {
	return c.PayUKey != "" && c.PayUSalt != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
