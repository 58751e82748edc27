package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"accesslog-backend/internal/shared/middleware"
	"accesslog-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares. Collector đứng cuối để đo status/latency
	// sau khi handler chạy xong.
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(c.Config.CORS.AllowOrigins),
		middleware.ClientIP(),
		middleware.Collector(c.Config.Collector, c.Dispatcher),
	)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		// Đọc/xoá log là admin surface
		admin := v1.Group("")
		admin.Use(middleware.AdminAuth(c.Config.Admin.Token))
		c.Handler.RegisterRoutes(admin)
	}

	return router
}

// ========================================
// HEALTH CHECK HANDLER
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
		}

		dbStatus := "ok"
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := appCtx.DB.HealthCheck(ctx); err != nil {
			dbStatus = "error: " + err.Error()
			health["status"] = "degraded"
		}

		bgStatus := "ok"
		if err := appCtx.BackgroundDB.HealthCheck(ctx); err != nil {
			bgStatus = "error: " + err.Error()
			health["status"] = "degraded"
		}

		health["services"] = gin.H{
			"database":            dbStatus,
			"background_database": bgStatus,
		}

		statusCode := http.StatusOK
		if dbStatus != "ok" {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, health)
	}
}
