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

// BookingManager is the booking behaviour the HTTP layer needs
type BookingManager interface {
	CreateBooking(ctx context.Context, userID uuid.UUID, req models.CreateBookingRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, requester models.Requester, bookingID uuid.UUID) (*models.Booking, error)
	DeleteBooking(ctx context.Context, requester models.Requester, bookingID uuid.UUID) error
	GetBooking(ctx context.Context, requester models.Requester, bookingID uuid.UUID) (*models.Booking, error)
	ListMyBookings(ctx context.Context, userID uuid.UUID) (*models.MyBookings, error)
	ListAllBookings(ctx context.Context, requester models.Requester) ([]models.Booking, error)
}

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookings BookingManager
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingManager, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), userCtx.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"booking": booking})
}

// GetMyBookings handles GET /api/v1/bookings/my-bookings
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	result, err := h.bookings.ListMyBookings(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAllBookings handles GET /api/v1/bookings (admin)
func (h *BookingHandler) GetAllBookings(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	bookings, err := h.bookings.ListAllBookings(c.Request.Context(), userCtx.Requester())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	id, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), userCtx.Requester(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// CancelBooking handles PATCH /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	id, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), userCtx.Requester(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled successfully",
		"booking": booking,
	})
}

// DeleteBooking handles DELETE /api/v1/bookings/:id (admin)
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	id, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	if err := h.bookings.DeleteBooking(c.Request.Context(), userCtx.Requester(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Booking deleted successfully"})
}
