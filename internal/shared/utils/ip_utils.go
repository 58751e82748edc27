package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// ExtractClientIP lấy IP thật của client qua các lớp proxy.
//
// Thứ tự ưu tiên:
// 1. X-Forwarded-For (IP public đầu tiên; proxy nội bộ hay prepend
//    IP private của client LAN vào chain)
// 2. X-Real-IP (nginx/cloudflare)
// 3. RemoteAddr (kết nối trực tiếp)
func ExtractClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		// Format: "client, proxy1, proxy2"
		var firstValid string
		for _, part := range strings.Split(xff, ",") {
			candidate := strings.TrimSpace(part)
			if !isValidIP(candidate) {
				continue
			}
			if firstValid == "" {
				firstValid = candidate
			}
			if !IsPrivateIP(candidate) {
				return candidate
			}
		}
		// cả chain đều private — traffic nội bộ, giữ IP đầu tiên
		if firstValid != "" {
			return firstValid
		}
	}

	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		if isValidIP(xri) {
			return xri
		}
	}

	// RemoteAddr format: "IP:port" hoặc "[IPv6]:port"
	remoteAddr := c.Request.RemoteAddr
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}
	if isValidIP(ip) {
		return ip
	}

	return "127.0.0.1"
}

func isValidIP(ip string) bool {
	return ip != "" && net.ParseIP(ip) != nil
}

// IsPrivateIP check IP thuộc dải private/loopback, dùng để phân biệt
// traffic nội bộ trong access log.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	privateIPBlocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
	}
	for _, cidr := range privateIPBlocks {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(parsed) {
			return true
		}
	}

	return parsed.IsLoopback()
}
