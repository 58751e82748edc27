package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"accesslog-backend/pkg/logger"
)

func main() {
	// Load từ .env file (development/local)
	// Production dùng system environment variables
	envMissing := godotenv.Load() != nil

	env := getEnv("APP_ENV", "development")
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Init(env)

	if envMissing {
		logger.Warn("No .env file found, using system environment variables", nil)
	}

	Serve()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
