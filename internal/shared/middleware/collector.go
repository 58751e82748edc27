package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"accesslog-backend/internal/config"
	"accesslog-backend/internal/domains/accesslog/model"
)

// SessionCookie là cookie giữ visitor session token.
const SessionCookie = "visitor_session"

// Dispatcher nhận payload đã thu thập và đưa nó tới nơi ghi DB
// (asynq queue hoặc in-process worker). Dispatch phải nhanh —
// không được ghi DB trên request path.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.CollectedRequest) error
}

// Collector thu thập thông tin mỗi request sau khi handler chạy xong
// (để có status code và latency) rồi đẩy qua dispatcher. Lỗi thu thập
// chỉ được log rồi bỏ — collector không bao giờ làm hỏng request.
func Collector(cfg config.CollectorConfig, d Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || skipPath(cfg.SkipPrefixes, c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		token := sessionToken(c)

		c.Next()

		req := model.CollectedRequest{
			RequestID:    c.GetString("request_id"),
			UserID:       c.GetString("user_id"),
			SessionToken: token,
			IPAddress:    c.GetString("client_ip"),
			Country:      clientCountry(c),
			Method:       c.Request.Method,
			Path:         c.Request.URL.Path,
			Query:        c.Request.URL.RawQuery,
			Referer:      c.Request.Referer(),
			Host:         c.Request.Host,
			UserAgent:    c.Request.UserAgent(),
			AcceptLang:   c.GetHeader("Accept-Language"),
			StatusCode:   c.Writer.Status(),
			LatencyMS:    time.Since(start).Milliseconds(),
			OccurredAt:   start.UTC(),
		}

		// Request context có thể đã bị cancel khi response xong;
		// dispatch dùng timeout riêng.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SaveTimeout)
		defer cancel()

		if err := d.Dispatch(ctx, req); err != nil {
			log.Error().
				Err(err).
				Str("request_id", req.RequestID).
				Str("path", req.Path).
				Msg("Access log dispatch failed")
		}
	}
}

// clientCountry đọc country code từ edge proxy (Cloudflare hoặc tương đương).
// Không có geo-IP lookup phía server — không có header thì để trống.
func clientCountry(c *gin.Context) string {
	if country := c.GetHeader("CF-IPCountry"); country != "" {
		return country
	}
	return c.GetHeader("X-Country-Code")
}

func skipPath(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// sessionToken đọc session cookie, phát cookie mới cho visitor lần đầu.
func sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
		return token
	}

	token := uuid.NewString()
	c.SetCookie(SessionCookie, token, int((30 * 24 * time.Hour).Seconds()), "/", "", false, true)
	return token
}
