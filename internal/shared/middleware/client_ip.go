package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"familytree-backend/internal/shared"
)

const clientIPKey = "client_ip"

// ClientIP lấy IP thật của client (sau reverse proxy) và gắn vào
// gin context lẫn request context. Đăng ký trước Logger.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := extractIPAddress(c.Request)
		c.Set(clientIPKey, ip)
		c.Request = c.Request.WithContext(shared.WithClientIP(c.Request.Context(), ip))
		c.Next()
	}
}

// extractIPAddress: X-Real-IP, rồi IP đầu tiên của X-Forwarded-For, cuối cùng RemoteAddr
func extractIPAddress(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientIP(c *gin.Context) string {
	if ip := c.GetString(clientIPKey); ip != "" {
		return ip
	}
	return c.ClientIP()
}
