package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config chứa toàn bộ application configuration
// Struct này được populate từ environment variables (.env load bởi godotenv ở cmd/)
type Config struct {
	App    AppConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Batch  BatchConfig
	Worker WorkerConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
	// StoreDriver: postgres | memory (memory chỉ cho local dev / demo)
	StoreDriver    string
	MigrationsPath string
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// BatchConfig - giới hạn của batch mutation
type BatchConfig struct {
	MaxOperations int
	// StatementTimeout giới hạn thời gian một batch giữ lock
	StatementTimeout time.Duration
	ReadCacheTTL     time.Duration
	GroupListLimit   int
}

// WorkerConfig - asynq worker + scheduler
type WorkerConfig struct {
	Concurrency        int
	IntegrityScanCron  string
	HealthCheckAddress string
}

// Load đọc config từ environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:           getEnv("APP_NAME", "Family Tree API"),
			Environment:    getEnv("APP_ENV", "development"),
			Port:           getEnv("APP_PORT", "8080"),
			Version:        getEnv("APP_VERSION", "1.0.0"),
			StoreDriver:    getEnv("STORE_DRIVER", "postgres"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
		},
		Batch: BatchConfig{
			MaxOperations:    getEnvInt("BATCH_MAX_OPERATIONS", 50),
			StatementTimeout: getEnvDuration("BATCH_STATEMENT_TIMEOUT", 5*time.Second),
			ReadCacheTTL:     getEnvDuration("READ_CACHE_TTL", 10*time.Minute),
			GroupListLimit:   getEnvInt("GROUP_LIST_LIMIT", 50),
		},
		Worker: WorkerConfig{
			Concurrency:        getEnvInt("WORKER_CONCURRENCY", 10),
			IntegrityScanCron:  getEnv("INTEGRITY_SCAN_CRON", "0 3 * * *"),
			HealthCheckAddress: getEnv("WORKER_HEALTH_ADDR", ":8081"),
		},
	}

	// Validate critical config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate kiểm tra config có hợp lệ không
func (c *Config) Validate() error {
	if c.Batch.MaxOperations < 1 {
		return fmt.Errorf("BATCH_MAX_OPERATIONS must be >= 1, got %d", c.Batch.MaxOperations)
	}
	if c.Batch.StatementTimeout <= 0 {
		return fmt.Errorf("BATCH_STATEMENT_TIMEOUT must be positive")
	}
	switch c.App.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.App.StoreDriver)
	}

	// Production environment phải có JWT secret thật
	if c.App.Environment == "production" {
		if c.JWT.Secret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.App.StoreDriver == "memory" {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("invalid int env, using default")
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("invalid duration env, using default")
		return defaultValue
	}
	return value
}
