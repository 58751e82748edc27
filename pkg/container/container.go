package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"accesslog-backend/internal/config"
	"accesslog-backend/internal/domains/accesslog/handler"
	"accesslog-backend/internal/domains/accesslog/job"
	"accesslog-backend/internal/domains/accesslog/service"
	"accesslog-backend/internal/infrastructure/database"
	"accesslog-backend/internal/infrastructure/queue"
	"accesslog-backend/internal/shared/middleware"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container chứa toàn bộ dependencies của application — root của
// dependency graph. Mọi thứ ở đây là singleton trong app lifetime.
type Container struct {
	Config *config.Config

	// Hai pool tách biệt: foreground phục vụ request, background
	// dành riêng cho ghi access log chạy nền.
	DB           *database.PostgresDB
	BackgroundDB *database.PostgresDB

	// Queue client, nil khi queue tắt
	Queue *queue.Client

	// Dispatcher mà collector middleware dùng: queue client hoặc
	// in-process fallback
	Dispatcher middleware.Dispatcher

	Service *service.Service
	Handler *handler.Handler
}

// NewContainer khởi tạo dependency graph theo thứ tự:
// config → databases → schema → service → dispatcher → handler.
// Thứ tự sai = nil pointer, nên đừng đảo.
func NewContainer() (*Container, error) {
	log.Println("🔧 Initializing DI Container...")
	c := &Container{}

	// ========================================
	// STEP 1: CONFIGURATION
	// ========================================
	log.Println("📋 Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Printf("✅ Config loaded (Environment: %s)", cfg.App.Environment)

	// ========================================
	// STEP 2: DATABASES
	// ========================================
	log.Println("🗄️  Connecting to PostgreSQL...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	debug := cfg.App.Environment == "development"

	fgConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	fgConfig.Debug = debug
	c.DB = database.NewPostgresDB("foreground", fgConfig)
	if err := c.DB.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect foreground pool: %w", err)
	}

	bgConfig, err := config.LoadBackgroundDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load background database config: %w", err)
	}
	bgConfig.Debug = debug
	c.BackgroundDB = database.NewPostgresDB("background", bgConfig)
	if err := c.BackgroundDB.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect background pool: %w", err)
	}

	if err := c.DB.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	log.Println("✅ Databases connected")

	// ========================================
	// STEP 3: SCHEMA
	// ========================================
	log.Println("📐 Ensuring schema...")
	if err := database.CreateSchema(ctx, c.DB.Bun()); err != nil {
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}
	log.Println("✅ Schema ready")

	// ========================================
	// STEP 4: SERVICE
	// ========================================
	c.Service = service.New(c.DB.Bun(), c.BackgroundDB.Bun())

	// ========================================
	// STEP 5: DISPATCHER
	// ========================================
	if cfg.Queue.Enabled {
		log.Println("📮 Queue enabled - dispatching via asynq")
		c.Queue = queue.NewClient(cfg.Queue)
		c.Dispatcher = c.Queue
	} else {
		log.Println("📮 Queue disabled - in-process ingest")
		c.Dispatcher = job.NewInProcessDispatcher(c.Service, cfg.Collector.SaveTimeout)
	}

	// ========================================
	// STEP 6: HANDLER
	// ========================================
	c.Handler = handler.NewHandler(c.Service)

	log.Println("🎉 DI Container initialized successfully")
	return c, nil
}

// Cleanup dọn resources lúc shutdown; gọi trong graceful shutdown.
func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			log.Printf("⚠️  Failed to close queue client: %v", err)
		}
	}
	if c.BackgroundDB != nil {
		c.BackgroundDB.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}

	log.Println("✅ Container cleanup completed")
}
