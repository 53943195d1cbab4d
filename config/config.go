// Package config holds Arcana's runtime knobs: the pair/source settings,
// database DSN, rate limiting, ingestion batching, and daemon interval.
// It is a direct generalization of the teacher bot's config.go/env.go
// duo — same getEnv/getEnvInt/getEnvFloat/getEnvBool helpers, same
// dependency-free .env loader, same "loadEnv(); cfg := loadConfigFromEnv()"
// call shape from main().
package config

import "time"

// Config holds all runtime knobs for trade ingestion and bar building.
type Config struct {
	// Source
	SourceTag    string // e.g., "coinbase"
	APIBase      string // e.g., "https://api.coinbase.com"
	Pair         string // e.g., "ETH-USD"
	PageLimit    int
	MinDelay     time.Duration // rate.min_delay_seconds

	// Database
	DatabaseDSN string
	BatchSize   int // store batch size, also ingest.batch_size

	// Ingestion
	WindowSeconds   int // ingest.window_seconds
	DaemonInterval  time.Duration

	// Ops
	Port     int
	LogLevel string
}

// loadConfigFromEnv reads the process env (already hydrated by loadEnv())
// and returns a Config with sane defaults if keys are missing.
func loadConfigFromEnv() Config {
	return Config{
		SourceTag:      getEnv("SOURCE_TAG", "coinbase"),
		APIBase:        getEnv("API_BASE", "https://api.coinbase.com"),
		Pair:           getEnv("PAIR", "ETH-USD"),
		PageLimit:      getEnvInt("PAGE_LIMIT", 1000),
		MinDelay:       time.Duration(getEnvFloat("RATE_MIN_DELAY_SECONDS", 0.12) * float64(time.Second)),
		DatabaseDSN:    getEnv("DATABASE_DSN", "postgres://localhost:5432/arcana?sslmode=disable"),
		BatchSize:      getEnvInt("INGEST_BATCH_SIZE", 1000),
		WindowSeconds:  getEnvInt("INGEST_WINDOW_SECONDS", 900),
		DaemonInterval: time.Duration(getEnvInt("DAEMON_INTERVAL_SECONDS", 900)) * time.Second,
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// Load hydrates the process env from .env (if present) and returns the
// resulting Config.
func Load() Config {
	loadEnv()
	return loadConfigFromEnv()
}
