package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/services"
	"github.com/travelhub/booking-backend/internal/utils"
)

// RequestMeta attaches the client IP and user agent to the request context
// so services can record them in audit entries
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := services.WithRequestMeta(c.Request.Context(), services.RequestMeta{
			IPAddress: utils.GetRealIP(c),
			UserAgent: utils.GetUserAgent(c),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs every completed request, at error level for 5xx and
// warn level for 4xx
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		userAgent := c.Request.UserAgent()
		fields := logrus.Fields{
			"status":      c.Writer.Status(),
			"method":      c.Request.Method,
			"path":        path,
			"query":       query,
			"ip":          utils.GetRealIP(c),
			"latency_ms":  time.Since(start).Milliseconds(),
			"user_agent":  userAgent,
			"device_type": utils.ParseUserAgent(userAgent).DeviceType,
		}
		if userCtx, exists := GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
			fields["role"] = userCtx.Role
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}
