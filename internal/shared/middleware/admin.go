package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"accesslog-backend/internal/shared/response"
)

// AdminAuth bảo vệ các endpoint đọc/xoá log bằng shared bearer token.
// Token rỗng = auth tắt (chỉ chấp nhận được ở development; config
// validation chặn case này ở production).
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		provided := strings.TrimPrefix(header, prefix)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Next()
	}
}
