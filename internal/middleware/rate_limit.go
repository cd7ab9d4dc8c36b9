package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/internal/services"
	"github.com/travelhub/booking-backend/internal/utils"
)

// RateLimit limits requests per client IP within scope. When Redis is
// unreachable requests are let through.
func RateLimit(limiter *services.RateLimitService, scope string, audit *services.AuditService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}

		err := limiter.Allow(c.Request.Context(), scope, utils.GetRealIP(c))
		if err == nil {
			c.Next()
			return
		}

		var limitErr *services.RateLimitError
		if !errors.As(err, &limitErr) {
			logger.WithError(err).WithField("scope", scope).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		seconds := int(math.Ceil(time.Until(limitErr.RetryAfter).Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))

		audit.LogRateLimitViolation(c.Request.Context(), scope, limitErr.RetryAfter)

		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":      string(models.KindRateLimited),
			"message":    limitErr.Message,
			"retryAfter": seconds,
		})
	}
}
