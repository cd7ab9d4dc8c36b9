package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/pkg/jwt"
)

type stubUsers map[uuid.UUID]*models.User

func (s stubUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == failingUserID {
		return nil, errors.New("connection refused")
	}
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, models.NewNotFoundError("User")
}

var failingUserID = uuid.New()

func setupTestJWTService() *jwt.Service {
	return jwt.NewService(
		"test-access-secret-key-123456789",
		"test-refresh-secret-key-123456789",
		time.Hour,
		24*time.Hour,
	)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newUser(role models.UserRole) *models.User {
	return &models.User{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", Role: role}
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	user := newUser(models.RoleUser)
	users := stubUsers{user.ID: user}
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, users, "token", testLogger()), func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		require.True(t, exists)
		c.JSON(http.StatusOK, gin.H{"message": "success", "email": userCtx.Email})
	})

	token, err := jwtService.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	require.NoError(t, err)

	t.Run("Bearer Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ada@example.com")
	})

	t.Run("Cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(setupTestJWTService(), stubUsers{}, "token", testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	tests := []struct {
		name   string
		header string
	}{
		{"No Header", ""},
		{"Missing Bearer", "some-token"},
		{"Wrong Prefix", "Basic some-token"},
		{"Empty Bearer", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "NO_TOKEN")
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	jwtService := setupTestJWTService()
	user := newUser(models.RoleUser)

	wrongService := jwt.NewService("wrong-secret-key", "wrong-refresh-secret", time.Hour, 24*time.Hour)
	forged, err := wrongService.GenerateAccessToken(user.ID, user.Email, "admin")
	require.NoError(t, err)
	refresh, err := jwtService.GenerateRefreshToken(user.ID)
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, stubUsers{user.ID: user}, "token", testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	tests := []struct {
		name  string
		token string
	}{
		{"Malformed", "invalid.token.here"},
		{"Random String", "randomstringnotavalidtoken"},
		{"Wrong Secret", forged},
		{"Refresh Token", refresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := jwt.NewService(
		"test-access-secret-key-123456789",
		"test-refresh-secret-key-123456789",
		-time.Minute,
		24*time.Hour,
	)
	user := newUser(models.RoleUser)

	token, err := jwtService.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, stubUsers{user.ID: user}, "token", testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestAuthMiddleware_UserLookup(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, stubUsers{}, "token", testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	t.Run("Deleted User", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(uuid.New(), "gone@example.com", "user")
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Store Failure", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(failingUserID, "ada@example.com", "user")
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expected := UserContext{UserID: uuid.New(), Email: "ada@example.com", Role: models.RoleAdmin}
		c.Set(UserContextKey, expected)

		userCtx, exists := GetUserContext(c)
		assert.True(t, exists)
		assert.Equal(t, expected, userCtx)
		assert.True(t, userCtx.Requester().IsAdmin())
	})

	t.Run("Context not found", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		userCtx, exists := GetUserContext(c)
		assert.False(t, exists)
		assert.Equal(t, UserContext{}, userCtx)
	})

	t.Run("Context wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserContextKey, "wrong type")
		_, exists := GetUserContext(c)
		assert.False(t, exists)
	})
}

func TestMustGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Panics(t, func() { MustGetUserContext(c) })

	c.Set(UserContextKey, UserContext{UserID: uuid.New()})
	assert.NotPanics(t, func() { MustGetUserContext(c) })
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	admin := newUser(models.RoleAdmin)
	user := newUser(models.RoleUser)
	users := stubUsers{admin.ID: admin, user.ID: user}

	router := setupTestRouter()
	router.GET("/admin-only",
		AuthMiddleware(jwtService, users, "token", testLogger()),
		RequireRole(models.RoleAdmin),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "success"}) },
	)
	router.GET("/no-auth", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	request := func(u *models.User, role string) *httptest.ResponseRecorder {
		token, err := jwtService.GenerateAccessToken(u.ID, u.Email, role)
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/admin-only", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("Admin", func(t *testing.T) {
		w := request(admin, "admin")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("User", func(t *testing.T) {
		w := request(user, "user")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSIONS")
	})

	t.Run("Role Claim Is Not Trusted", func(t *testing.T) {
		w := request(user, "admin")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("No User Context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/no-auth", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
	})
}
