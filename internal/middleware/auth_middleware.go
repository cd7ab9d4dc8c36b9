package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/pkg/jwt"
)

// UserContextKey is the gin context key holding the authenticated UserContext
const UserContextKey = "user_context"

// UserContext is the authenticated caller of a request
type UserContext struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   models.UserRole
}

// Requester converts the context into the caller identity used by services
func (u UserContext) Requester() models.Requester {
	return models.Requester{UserID: u.UserID, Role: u.Role}
}

// UserLoader loads the current user record of a token's subject
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware validates the access token from the cookie named cookieName
// or the Authorization header and loads the user, so a role change or a
// deleted account takes effect on the next request.
func AuthMiddleware(jwtService *jwt.Service, users UserLoader, cookieName string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, cookieName)
		if token == "" {
			abortUnauthorized(c, "NO_TOKEN", "Access denied. No token provided.")
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, gojwt.ErrTokenExpired) {
				abortUnauthorized(c, "TOKEN_EXPIRED", "Token has expired")
				return
			}
			abortUnauthorized(c, "INVALID_TOKEN", "Invalid token")
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if models.IsKind(err, models.KindNotFound) {
				abortUnauthorized(c, "INVALID_TOKEN", "User no longer exists")
				return
			}
			logger.WithError(err).WithField("user_id", claims.UserID).Error("Failed to load authenticated user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   string(models.KindInternal),
				"message": "Internal server error",
			})
			return
		}

		c.Set(UserContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
			Role:   user.Role,
		})
		c.Set("user_id", user.ID.String())

		c.Next()
	}
}

// RequireRole allows the request through only when the caller holds one of
// roles. Must run after AuthMiddleware.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortUnauthorized(c, "MISSING_USER_CONTEXT", "User context not found")
			return
		}

		for _, role := range roles {
			if userCtx.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "INSUFFICIENT_PERMISSIONS",
			"message": "Access denied. Insufficient permissions.",
		})
	}
}

// GetUserContext returns the authenticated caller set by AuthMiddleware
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}
	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}
	return userCtx, true
}

// MustGetUserContext is GetUserContext for routes behind AuthMiddleware. It
// panics when the middleware did not run.
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, exists := GetUserContext(c)
	if !exists {
		panic("user context not found: AuthMiddleware is missing on this route")
	}
	return userCtx
}

// extractToken prefers the cookie, then a Bearer Authorization header
func extractToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token
		}
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   code,
		"message": message,
	})
}
