package middleware

import (
	"github.com/gin-gonic/gin"

	"accesslog-backend/internal/shared/utils"
)

// ClientIP extract IP thật của client (qua proxy headers) và set vào
// gin context. Đăng ký sớm trong middleware chain để mọi handler
// phía sau đều có IP.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("client_ip", utils.ExtractClientIP(c))
		c.Next()
	}
}
