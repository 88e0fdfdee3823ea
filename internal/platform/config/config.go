package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean and deployments stay 12-factor.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  string
	KafkaTopic    string
	JWTSigningKey string
	Development   bool

	// NotificationTTL bounds how long an alert stays actionable.
	NotificationTTL time.Duration
	// SweepInterval controls the notification expiry sweeper cadence.
	SweepInterval time.Duration
	// ViewWindow is the coalescing window for repeated log-view events.
	ViewWindow time.Duration
}

// RedisConfig holds tuning for the optional Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	addr := os.Getenv("CARETRAIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("KAFKA_CRITICAL_TOPIC")
	if topic == "" {
		topic = "caretrail.critical"
	}

	return Config{
		Addr:            addr,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      topic,
		JWTSigningKey:   jwtSigningKey,
		Development:     os.Getenv("CARETRAIL_ENV") != "production",
		NotificationTTL: durationEnv("NOTIFICATION_TTL", 24*time.Hour),
		SweepInterval:   durationEnv("NOTIFICATION_SWEEP_INTERVAL", 5*time.Minute),
		ViewWindow:      durationEnv("VIEW_COALESCE_WINDOW", time.Hour),
	}
}

// Redis derives the Redis client config with pool defaults.
func (c Config) Redis() RedisConfig {
	poolSize := intEnv("REDIS_POOL_SIZE", 10)
	return RedisConfig{
		URL:          c.RedisURL,
		PoolSize:     poolSize,
		MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
