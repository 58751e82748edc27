package config

import (
	"fmt"
	"strconv"
	"time"

	"accesslog-backend/internal/infrastructure/database"
)

// LoadDatabaseConfig đọc config cho foreground pool (request path).
// Defaults: 20 connection thường + 20 overflow => MaxConns 40,
// recycle 280s để nằm dưới idle timeout của các proxy phía trước DB.
func LoadDatabaseConfig() (*database.DBConfig, error) {
	return loadPool("DB", &database.DBConfig{
		MaxConns:          40,
		MinConns:          20,
		MaxConnLifetime:   280 * time.Second,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: time.Minute,
		MaxRetries:        5,
		RetryDelay:        time.Second,
		ConnectTimeout:    10 * time.Second,
	})
}

// LoadBackgroundDatabaseConfig đọc config cho background pool
// (ghi access log chạy nền). Pool nhỏ hơn: 10 + 10 overflow.
func LoadBackgroundDatabaseConfig() (*database.DBConfig, error) {
	return loadPool("BG_DB", &database.DBConfig{
		MaxConns:          20,
		MinConns:          10,
		MaxConnLifetime:   280 * time.Second,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: time.Minute,
		MaxRetries:        5,
		RetryDelay:        time.Second,
		ConnectTimeout:    10 * time.Second,
	})
}

// loadPool đọc env theo prefix, defaults truyền qua tham số.
// Hai pool dùng chung DB_HOST/DB_USER/... trừ khi prefix riêng override.
func loadPool(prefix string, defaults *database.DBConfig) (*database.DBConfig, error) {
	maxConns, err := strconv.Atoi(getEnv(prefix+"_MAX_CONNS", strconv.Itoa(int(defaults.MaxConns))))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_MAX_CONNS: %w", prefix, err)
	}

	minConns, err := strconv.Atoi(getEnv(prefix+"_MIN_CONNS", strconv.Itoa(int(defaults.MinConns))))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_MIN_CONNS: %w", prefix, err)
	}

	maxRetries, err := strconv.Atoi(getEnv(prefix+"_MAX_RETRIES", strconv.Itoa(defaults.MaxRetries)))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_MAX_RETRIES: %w", prefix, err)
	}

	maxConnLifetime, err := time.ParseDuration(getEnv(prefix+"_MAX_CONN_LIFETIME", defaults.MaxConnLifetime.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_MAX_CONN_LIFETIME: %w", prefix, err)
	}

	maxConnIdleTime, err := time.ParseDuration(getEnv(prefix+"_MAX_CONN_IDLE_TIME", defaults.MaxConnIdleTime.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_MAX_CONN_IDLE_TIME: %w", prefix, err)
	}

	healthCheckPeriod, err := time.ParseDuration(getEnv(prefix+"_HEALTH_CHECK_PERIOD", defaults.HealthCheckPeriod.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_HEALTH_CHECK_PERIOD: %w", prefix, err)
	}

	retryDelay, err := time.ParseDuration(getEnv(prefix+"_RETRY_DELAY", defaults.RetryDelay.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_RETRY_DELAY: %w", prefix, err)
	}

	connectTimeout, err := time.ParseDuration(getEnv(prefix+"_CONNECT_TIMEOUT", defaults.ConnectTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_CONNECT_TIMEOUT: %w", prefix, err)
	}

	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	return &database.DBConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              port,
		Username:          getEnv("DB_USER", "accesslog"),
		Password:          getEnv("DB_PASSWORD", "secret"),
		DBName:            getEnv("DB_NAME", "accesslog_dev"),
		MaxConns:          int32(maxConns),
		MinConns:          int32(minConns),
		MaxConnLifetime:   maxConnLifetime,
		MaxConnIdleTime:   maxConnIdleTime,
		HealthCheckPeriod: healthCheckPeriod,
		MaxRetries:        maxRetries,
		RetryDelay:        retryDelay,
		ConnectTimeout:    connectTimeout,
	}, nil
}
