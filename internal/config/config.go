package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config chứa toàn bộ application configuration
// Struct này được populate từ environment variables
type Config struct {
	App       AppConfig
	Queue     QueueConfig
	Collector CollectorConfig
	Admin     AdminConfig
	CORS      CORSConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

// QueueConfig cho asynq background queue (Redis-backed).
// Enabled=false thì access log ingest chạy bằng in-process goroutine
// trên background pool thay vì đẩy qua queue.
type QueueConfig struct {
	Enabled     bool
	RedisAddr   string
	RedisDB     int
	Concurrency int
}

// CollectorConfig điều khiển middleware thu thập access log.
type CollectorConfig struct {
	Enabled bool
	// Path prefix bị bỏ qua, không ghi log (health check, metrics...)
	SkipPrefixes []string
	// Timeout cho một lần ghi log chạy nền
	SaveTimeout time.Duration
}

// AdminConfig bảo vệ các endpoint đọc/xoá log.
type AdminConfig struct {
	// Shared bearer token; rỗng = tắt auth (chỉ cho development)
	Token string
}

type CORSConfig struct {
	AllowOrigins []string
}

// Load đọc config từ environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Access Log API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Queue: QueueConfig{
			Enabled:     getEnvBool("QUEUE_ENABLED", false),
			RedisAddr:   getEnv("REDIS_HOST", "localhost:6379"),
			RedisDB:     getEnvInt("REDIS_DB", 0),
			Concurrency: getEnvInt("QUEUE_CONCURRENCY", 10),
		},
		Collector: CollectorConfig{
			Enabled:      getEnvBool("COLLECTOR_ENABLED", true),
			SkipPrefixes: []string{"/health"},
			SaveTimeout:  getEnvDuration("COLLECTOR_SAVE_TIMEOUT", 5*time.Second),
		},
		Admin: AdminConfig{
			Token: getEnv("ADMIN_TOKEN", ""),
		},
		CORS: CORSConfig{
			AllowOrigins: []string{getEnv("CORS_ALLOW_ORIGIN", "*")},
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
	if c.App.Environment == "production" {
		if c.Admin.Token == "" {
			return fmt.Errorf("ADMIN_TOKEN must be set in production")
		}
		if os.Getenv("DB_PASSWORD") == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
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
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
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
		return defaultValue
	}
	return value
}
