// Package config loads runtime settings for the booking service from
// environment variables, falling back to local-development defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Booking protocol variants.
const (
	VariantSafe   = "safe"
	VariantUnsafe = "unsafe"
)

// Config is the full application configuration.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Store    StoreConfig
	Booking  BookingConfig
	Retry    RetryConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32

	// URL is the raw DATABASE_URL when one was given; DSN returns it as is.
	URL string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// StoreConfig selects the inventory store backend.
type StoreConfig struct {
	Backend string
}

// BookingConfig selects the booking protocol.
//
// RaceGap is the pause the unsafe variant takes between reading the
// remaining count and writing the decrement. It exists to widen the race
// window and has no effect on the safe variant.
type BookingConfig struct {
	Variant string
	RaceGap time.Duration
}

// RetryConfig bounds how long storage operations wait for a connection.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// MetricsConfig holds optional basic-auth credentials for /metrics.
type MetricsConfig struct {
	User     string
	Password string
}

// AuthEnabled reports whether /metrics requires basic auth.
func (c MetricsConfig) AuthEnabled() bool {
	return c.User != "" && c.Password != ""
}

// Load reads the configuration from the environment.
func Load() *Config {
	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "8000"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ticketdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getIntEnv("DB_MAX_CONNS", 20)),
			MinConns: int32(getIntEnv("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", BackendPostgres),
		},
		Booking: BookingConfig{
			Variant: getEnv("BOOKING_VARIANT", VariantSafe),
			RaceGap: getDurationEnv("BOOKING_RACE_GAP", 10*time.Millisecond),
		},
		Retry: RetryConfig{
			Attempts: getIntEnv("DB_RETRY_ATTEMPTS", 5),
			Delay:    getDurationEnv("DB_RETRY_DELAY", 2*time.Second),
		},
		Metrics: MetricsConfig{
			User:     os.Getenv("METRICS_USER"),
			Password: os.Getenv("METRICS_PASSWORD"),
		},
	}

	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		applyDatabaseURL(&cfg.Database, raw)
	}
	return cfg
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Booking.Variant {
	case VariantSafe, VariantUnsafe:
	default:
		return fmt.Errorf("unknown BOOKING_VARIANT %q", c.Booking.Variant)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("DB_RETRY_ATTEMPTS must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("DB_RETRY_DELAY must not be negative")
	}
	if c.Booking.RaceGap < 0 {
		return fmt.Errorf("BOOKING_RACE_GAP must not be negative")
	}
	return nil
}

// DSN returns a postgres:// connection string. Credentials are URL
// escaped, so passwords may contain spaces or quotes.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Addr returns the Redis host:port address.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// applyDatabaseURL overrides the discrete fields from a postgres:// URL.
// A URL that does not parse leaves the existing values untouched.
func applyDatabaseURL(c *DatabaseConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if name := strings.TrimLeft(u.Path, "/"); name != "" {
		c.DBName = name
	}

	q := u.Query()
	c.SSLMode = "require"
	if mode := q.Get("sslmode"); mode != "" {
		c.SSLMode = mode
	} else {
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
	}
	c.URL = u.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
