package dbconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "arena"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
	}
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// PoolDSN is DSN with the pgxpool size appended.
func (c Config) PoolDSN() string {
	if c.MaxConns <= 0 {
		return c.DSN()
	}
	return fmt.Sprintf("%s&pool_max_conns=%d", c.DSN(), c.MaxConns)
}

// Services holds the connection settings of everything besides Postgres.
type Services struct {
	Store string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// MirrorRetention is how long a session token outlives its deadline.
	MirrorRetention time.Duration

	NATSURL string

	S3Bucket string
	S3Region string

	Port string
}

// NewServicesFromEnv reads the non-database settings. An empty RedisAddr,
// NATSURL or S3Bucket selects the in-process fallback for that concern.
func NewServicesFromEnv() Services {
	return Services{
		Store:           getEnv("STORE", StorePostgres),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		MirrorRetention: getEnvAsDuration("MIRROR_RETENTION", 24*time.Hour),
		NATSURL:         os.Getenv("NATS_URL"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		Port:            getEnv("PORT", "8080"),
	}
}

// Validate checks the settings that have no usable default.
func (s Services) Validate() error {
	switch s.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE %q (want %s or %s)", s.Store, StorePostgres, StoreMemory)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
