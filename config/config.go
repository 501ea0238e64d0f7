// Package config loads daemon configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultPendingTTL    = 15 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultLockWait      = 3 * time.Second
)

// Config carries everything the daemon needs to wire itself.
type Config struct {
	// DatabaseURL is the postgres connection string. Required.
	DatabaseURL string

	// PendingTTL is the horizon after which a PENDING transfer expires.
	PendingTTL time.Duration

	// SweepInterval is the fixed delay between expiry sweeps, used when
	// SweepSchedule is empty.
	SweepInterval time.Duration

	// SweepSchedule is an optional 5-field cron expression overriding
	// SweepInterval.
	SweepSchedule string

	// LockWait bounds how long a unit of work waits for row locks.
	LockWait time.Duration

	// RedisAddr enables the cross-instance sweep lease when set.
	RedisAddr string

	// KafkaBrokers and KafkaTopic enable the lifecycle event stream when
	// both are set.
	KafkaBrokers []string
	KafkaTopic   string

	// LogLevel is a zap level string ("debug", "info", ...).
	LogLevel string

	// Environment selects the logger profile ("production" or anything else
	// for development).
	Environment string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (Config, error) {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:   os.Getenv("WALLET_DATABASE_URL"),
		PendingTTL:    DefaultPendingTTL,
		SweepInterval: DefaultSweepInterval,
		SweepSchedule: os.Getenv("WALLET_SWEEP_SCHEDULE"),
		LockWait:      DefaultLockWait,
		RedisAddr:     os.Getenv("WALLET_REDIS_ADDR"),
		KafkaTopic:    os.Getenv("WALLET_KAFKA_TOPIC"),
		LogLevel:      getDefault("WALLET_LOG_LEVEL", "info"),
		Environment:   getDefault("WALLET_ENV", "development"),
	}

	if brokers := os.Getenv("WALLET_KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if trimmed := strings.TrimSpace(broker); trimmed != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, trimmed)
			}
		}
	}

	var err error

	if cfg.PendingTTL, err = durationFromEnv("WALLET_PENDING_TTL", cfg.PendingTTL); err != nil {
		return Config{}, err
	}

	if cfg.SweepInterval, err = durationFromEnv("WALLET_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}

	if cfg.LockWait, err = durationFromEnv("WALLET_LOCK_WAIT", cfg.LockWait); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("WALLET_DATABASE_URL is required")
	}

	if c.PendingTTL <= 0 {
		return fmt.Errorf("WALLET_PENDING_TTL must be positive")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("WALLET_SWEEP_INTERVAL must be positive")
	}

	if c.KafkaTopic != "" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("WALLET_KAFKA_BROKERS is required when WALLET_KAFKA_TOPIC is set")
	}

	return nil
}

func getDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return parsed, nil
}
