// Package config loads application configuration from environment
// variables, optionally seeded from a .env file via godotenv.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Feed
	FeedURL string

	// Session clock
	Timezone     string // IANA name, e.g. "America/Chicago"
	CutoverHour  int    // trades at/after this hour belong to the next trading day
	IntradayHour int    // hour at which intermediate marking switches sodTod -> sodTom
	RolloverHour int    // hour of the daily start-of-day price rollover

	// P&L
	PointMultiplier float64

	// Aggregation
	DebounceMs int
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first if
// present; real environment variables win over it.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/pnl.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		FeedURL: getEnv("FEED_URL", "ws://localhost:9001/ws"),

		Timezone:     getEnv("SESSION_TZ", "America/Chicago"),
		CutoverHour:  getEnvInt("CUTOVER_HOUR", 17),
		IntradayHour: getEnvInt("INTRADAY_HOUR", 15),
		RolloverHour: getEnvInt("ROLLOVER_HOUR", 17),

		PointMultiplier: getEnvFloat("POINT_MULTIPLIER", 1000),

		DebounceMs: getEnvInt("DEBOUNCE_MS", 50),
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[config] invalid SESSION_TZ %q, falling back to UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

// Debounce returns the aggregator debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] invalid %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}
