package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/extra/bundebug"
)

// DBConfig chứa toàn bộ thông số cho một connection pool.
// Service chạy HAI pool tách biệt: foreground cho request path và
// background cho việc ghi log chạy nền, để background writes không
// bao giờ chiếm hết connection của request.
type DBConfig struct {
	// Thông tin kết nối cơ bản
	Host     string
	Port     int
	Username string
	Password string
	DBName   string

	// Connection pool
	MaxConns          int32         // tổng connection tối đa (pool size + overflow)
	MinConns          int32         // pre-warm để giảm latency cho request đầu
	MaxConnLifetime   time.Duration // recycle connection định kỳ, tránh stale connection
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration // tần suất ping để loại broken connection khỏi pool

	// Retry khi kết nối thất bại
	MaxRetries     int
	RetryDelay     time.Duration // delay ban đầu, nhân đôi mỗi lần (exponential backoff)
	ConnectTimeout time.Duration

	// Log SQL query ra console (chỉ bật ở development)
	Debug bool
}

// PostgresDB quản lý một pgx connection pool và bun handle trên pool đó.
// Name phân biệt pool trong log ("foreground" / "background").
type PostgresDB struct {
	Name   string
	Pool   *pgxpool.Pool
	Config *DBConfig

	bun *bun.DB
}

func NewPostgresDB(name string, config *DBConfig) *PostgresDB {
	return &PostgresDB{Name: name, Config: config}
}

// Bun trả về bun handle dùng chung cho repository layer.
// Chỉ valid sau khi Connect thành công.
func (db *PostgresDB) Bun() *bun.DB { return db.bun }

func (db *PostgresDB) buildConnectionString() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s",
		db.Config.Username,
		db.Config.Password,
		db.Config.Host,
		db.Config.Port,
		db.Config.DBName,
	)
}

func (db *PostgresDB) configurePool() (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(db.buildConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = db.Config.MaxConns
	config.MinConns = db.Config.MinConns
	config.MaxConnLifetime = db.Config.MaxConnLifetime
	config.MaxConnIdleTime = db.Config.MaxConnIdleTime
	config.HealthCheckPeriod = db.Config.HealthCheckPeriod
	config.ConnConfig.ConnectTimeout = db.Config.ConnectTimeout

	return config, nil
}

// connectWithRetry thử kết nối với exponential backoff:
// delay = RetryDelay * 2^(attempt-1), dừng sớm khi ctx bị cancel.
func (db *PostgresDB) connectWithRetry(ctx context.Context, config *pgxpool.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var lastErr error

	for attempt := 1; attempt <= db.Config.MaxRetries; attempt++ {
		log.Printf("[DATABASE:%s] Connection attempt %d/%d", db.Name, attempt, db.Config.MaxRetries)

		connectCtx, cancel := context.WithTimeout(ctx, db.Config.ConnectTimeout)
		pool, lastErr = pgxpool.NewWithConfig(connectCtx, config)
		cancel()

		if lastErr == nil {
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				lastErr = err
				log.Printf("[DATABASE:%s] Ping failed: %v", db.Name, err)
			} else {
				log.Printf("[DATABASE:%s] Successfully connected on attempt %d", db.Name, attempt)
				return pool, nil
			}
		} else {
			log.Printf("[DATABASE:%s] Attempt %d failed: %v", db.Name, attempt, lastErr)
		}

		if attempt < db.Config.MaxRetries {
			delay := db.Config.RetryDelay * time.Duration(1<<uint(attempt-1))
			log.Printf("[DATABASE:%s] Retrying in %v...", db.Name, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w",
		db.Config.MaxRetries, lastErr)
}

// Connect establish pool rồi mở bun handle trên pool qua database/sql bridge.
// Pool settings (lifetime, health check) vẫn do pgx quản lý.
func (db *PostgresDB) Connect(ctx context.Context) error {
	log.Printf("[DATABASE:%s] Initializing PostgreSQL connection...", db.Name)

	config, err := db.configurePool()
	if err != nil {
		return fmt.Errorf("pool configuration failed: %w", err)
	}

	pool, err := db.connectWithRetry(ctx, config)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	db.Pool = pool

	sqldb := stdlib.OpenDBFromPool(pool)
	db.bun = bun.NewDB(sqldb, pgdialect.New())
	if db.Config.Debug {
		db.bun.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	log.Printf("[DATABASE:%s] PostgreSQL connection established successfully", db.Name)
	return nil
}

// HealthCheck verify connectivity, dùng cho health endpoint.
func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Pool.Ping(healthCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	stats := db.Pool.Stat()
	log.Printf("[DATABASE:%s] Health check passed - Total connections: %d, Idle: %d, Acquired: %d",
		db.Name,
		stats.TotalConns(),
		stats.IdleConns(),
		stats.AcquiredConns(),
	)

	return nil
}

// Close đóng bun handle (và sql.DB bên dưới) rồi đóng pool.
func (db *PostgresDB) Close() {
	if db.bun != nil {
		_ = db.bun.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
	log.Printf("[DATABASE:%s] Connection pool closed", db.Name)
}
