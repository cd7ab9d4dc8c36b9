package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/middleware"
	"github.com/travelhub/booking-backend/internal/models"
)

// TripManager is the trip catalog behaviour the HTTP layer needs
type TripManager interface {
	ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)
	GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	CreateTrip(ctx context.Context, requester models.Requester, req models.CreateTripRequest) (*models.Trip, error)
	UpdateTrip(ctx context.Context, requester models.Requester, id uuid.UUID, req models.UpdateTripRequest) (*models.Trip, error)
	DeleteTrip(ctx context.Context, requester models.Requester, id uuid.UUID) error
}

// TripHandler handles trip catalog HTTP requests
type TripHandler struct {
	trips  TripManager
	logger *logrus.Logger
}

// NewTripHandler creates a new trip handler
func NewTripHandler(trips TripManager, logger *logrus.Logger) *TripHandler {
	return &TripHandler{trips: trips, logger: logger}
}

// ListTrips handles GET /api/v1/trips?from=&to=&date=
func (h *TripHandler) ListTrips(c *gin.Context) {
	filter := models.TripFilter{
		From: strings.TrimSpace(c.Query("from")),
		To:   strings.TrimSpace(c.Query("to")),
	}
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		date, err := models.ParseTripDate(raw)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		filter.Date = &date
	}

	trips, err := h.trips.ListTrips(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

// GetTrip handles GET /api/v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "trip")
	if !ok {
		return
	}

	trip, err := h.trips.GetTrip(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trip": trip})
}

// CreateTrip handles POST /api/v1/trips (admin)
func (h *TripHandler) CreateTrip(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	trip, err := h.trips.CreateTrip(c.Request.Context(), userCtx.Requester(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"trip": trip})
}

// UpdateTrip handles PUT /api/v1/trips/:id (admin)
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	id, ok := parseIDParam(c, "id", "trip")
	if !ok {
		return
	}

	var req models.UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c)
		return
	}

	trip, err := h.trips.UpdateTrip(c.Request.Context(), userCtx.Requester(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trip": trip})
}

// DeleteTrip handles DELETE /api/v1/trips/:id (admin)
func (h *TripHandler) DeleteTrip(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	id, ok := parseIDParam(c, "id", "trip")
	if !ok {
		return
	}

	if err := h.trips.DeleteTrip(c.Request.Context(), userCtx.Requester(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Trip deleted successfully"})
}
