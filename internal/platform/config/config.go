// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the server process needs at startup. An empty
// DatabaseURL selects the in-memory stores; an empty Redis URL disables the
// rule cache.
type Config struct {
	Addr           string
	DatabaseURL    string
	MigrationsPath string
	Redis          RedisConfig
	SweepInterval  time.Duration
	SweepBatchSize int
	NotifyBuffer   int
}

// RedisConfig carries the rule-cache connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset.
func FromEnv() Config {
	return Config{
		Addr:           envString("REMEDIA_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationsPath: envString("MIGRATIONS_PATH", "migrations"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     envDuration("SLA_RULE_CACHE_TTL", 5*time.Minute),
		},
		SweepInterval:  envDuration("SWEEP_INTERVAL", time.Hour),
		SweepBatchSize: envInt("SWEEP_BATCH_SIZE", 100),
		NotifyBuffer:   envInt("NOTIFY_BUFFER", 256),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
