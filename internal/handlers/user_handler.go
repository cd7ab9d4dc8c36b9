package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/middleware"
	"github.com/travelhub/booking-backend/internal/models"
)

// UserManager is the profile and admin user behaviour the HTTP layer needs
type UserManager interface {
	UpdateProfile(ctx context.Context, userID uuid.UUID, req models.UpdateProfileRequest) (*models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, req models.ChangePasswordRequest) error
	ListUsers(ctx context.Context, requester models.Requester) ([]models.User, error)
	Stats(ctx context.Context, requester models.Requester) (*models.DashboardStats, error)
}

// UserHandler handles profile and user administration requests
type UserHandler struct {
	users  UserManager
	logger *logrus.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserManager, logger *logrus.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// UpdateProfile handles PUT /api/v1/users/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userCtx.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ChangePassword handles PUT /api/v1/users/change-password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), userCtx.UserID, req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Password updated successfully"})
}

// ListUsers handles GET /api/v1/users (admin)
func (h *UserHandler) ListUsers(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	users, err := h.users.ListUsers(c.Request.Context(), userCtx.Requester())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetStats handles GET /api/v1/users/stats (admin)
func (h *UserHandler) GetStats(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	stats, err := h.users.Stats(c.Request.Context(), userCtx.Requester())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
