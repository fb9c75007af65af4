// Package config provides configuration management for the latency monitor.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Aggregation AggregationConfig
	Cache       CacheConfig
	Retention   RetentionConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// AggregationConfig holds the freshness window and ranking thresholds
type AggregationConfig struct {
	FreshnessMinutes int // lookback window defining "current" data
	MinRegions       int // minimum distinct regions for the fastest ranking
	TopK             int // size of the fastest-endpoints ranking
	NearTipTolerance int // blocks behind the observed tip still counted as synced
	NearTipCount     int // size of the near-tip ranking
	QueryTimeout     time.Duration
}

// CacheConfig holds summary cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// RetentionConfig holds probe retention configuration
type RetentionConfig struct {
	Days     int
	Schedule string // cron spec for the pruner
}

// RateLimitConfig holds ingestion rate limiting configuration
type RateLimitConfig struct {
	IngestRPS int
	Burst     int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string
	Encoding string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "latency_monitor"),
				User:           getEnv("POSTGRES_USER", "monitor"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "latency_monitor"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Aggregation: AggregationConfig{
			FreshnessMinutes: getEnvAsInt("DATA_FRESHNESS_MINUTES", 60),
			MinRegions:       getEnvAsInt("MIN_REGIONS_FOR_RANKING", 2),
			TopK:             getEnvAsInt("TOP_FASTEST_COUNT", 15),
			NearTipTolerance: getEnvAsInt("NEAR_TIP_BLOCK_TOLERANCE", 5),
			NearTipCount:     getEnvAsInt("NEAR_TIP_COUNT", 3),
			QueryTimeout:     getEnvAsDuration("STORAGE_QUERY_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 20*time.Second),
		},
		Retention: RetentionConfig{
			Days:     getEnvAsInt("RETENTION_DAYS", 30),
			Schedule: getEnv("RETENTION_SCHEDULE", "0 3 * * *"),
		},
		RateLimit: RateLimitConfig{
			IngestRPS: getEnvAsInt("INGEST_RATE_LIMIT_RPS", 5),
			Burst:     getEnvAsInt("INGEST_RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate rejects threshold values that would make aggregation meaningless
func (c *Config) validate() error {
	if c.Aggregation.FreshnessMinutes <= 0 {
		return fmt.Errorf("DATA_FRESHNESS_MINUTES must be positive, got %d", c.Aggregation.FreshnessMinutes)
	}
	if c.Aggregation.MinRegions < 1 {
		return fmt.Errorf("MIN_REGIONS_FOR_RANKING must be at least 1, got %d", c.Aggregation.MinRegions)
	}
	if c.Aggregation.TopK < 1 {
		return fmt.Errorf("TOP_FASTEST_COUNT must be at least 1, got %d", c.Aggregation.TopK)
	}
	if c.Aggregation.NearTipTolerance < 0 {
		return fmt.Errorf("NEAR_TIP_BLOCK_TOLERANCE must not be negative, got %d", c.Aggregation.NearTipTolerance)
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1, got %d", c.Retention.Days)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
