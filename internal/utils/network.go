package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealIP returns the client IP, preferring the first public address in
// X-Real-IP or X-Forwarded-For over gin's ClientIP
func GetRealIP(c *gin.Context) string {
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); isPublicIP(realIP) {
		return realIP
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip := strings.TrimSpace(part); isPublicIP(ip) {
				return ip
			}
		}
	}

	return c.ClientIP()
}

// GetUserAgent returns the User-Agent header or "Unknown"
func GetUserAgent(c *gin.Context) string {
	if userAgent := c.Request.UserAgent(); userAgent != "" {
		return userAgent
	}
	return "Unknown"
}

func isPublicIP(value string) bool {
	ip := net.ParseIP(value)
	return ip != nil && !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified()
}
