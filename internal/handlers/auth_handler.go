package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/middleware"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/internal/services"
)

// AuthManager is the authentication behaviour the HTTP layer needs
type AuthManager interface {
	Register(ctx context.Context, req models.RegisterRequest) (*services.AuthResult, error)
	Login(ctx context.Context, req models.LoginRequest) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	AccessTokenExpiry() time.Duration
}

// CookieConfig describes the httpOnly cookie carrying the access token
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	auth   AuthManager
	cookie CookieConfig
	logger *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth AuthManager, cookie CookieConfig, logger *logrus.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	return &AuthHandler{auth: auth, cookie: cookie, logger: logger}
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LogoutRequest optionally names the refresh token to revoke
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setTokenCookie(c, result.Token)
	c.JSON(http.StatusCreated, result)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setTokenCookie(c, result.Token)
	c.JSON(http.StatusOK, result)
}

// RefreshToken handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	token, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setTokenCookie(c, token)
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int64(h.auth.AccessTokenExpiry().Seconds()),
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	// the body is optional; without it only the cookie is cleared
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.auth.Logout(c.Request.Context(), userCtx.UserID, req.RefreshToken); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.clearTokenCookie(c)
	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	user, err := h.auth.Me(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.auth.AccessTokenExpiry().Seconds()), "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) clearTokenCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
}
