package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/pkg/validator"
)

// TripStore is the persistence used by TripService
type TripStore interface {
	List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	Create(ctx context.Context, trip *models.Trip) error
	UpdateLocked(ctx context.Context, id uuid.UUID, apply func(trip *models.Trip) error) (*models.Trip, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TripService is the trip catalog
type TripService struct {
	store     TripStore
	validator *validator.Validator
	cache     TripCache
	audit     *AuditService
	logger    *logrus.Logger
}

// NewTripService creates a new trip service. cache and audit may be nil.
func NewTripService(store TripStore, v *validator.Validator, cache TripCache, audit *AuditService, logger *logrus.Logger) *TripService {
	if cache == nil {
		cache = noopTripCache{}
	}
	return &TripService{
		store:     store,
		validator: v,
		cache:     cache,
		audit:     audit,
		logger:    logger,
	}
}

// ListTrips returns trips matching filter, earliest departure first
func (s *TripService) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	cached, key, hit, err := s.cache.Get(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Warn("Trip cache read failed")
	}
	if hit {
		return cached, nil
	}

	trips, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, trips); err != nil {
		s.logger.WithError(err).Warn("Trip cache write failed")
	}
	return trips, nil
}

// GetTrip returns one trip
func (s *TripService) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	return s.store.GetByID(ctx, id)
}

// CreateTrip adds a trip with every seat available. Admin only.
func (s *TripService) CreateTrip(ctx context.Context, requester models.Requester, req models.CreateTripRequest) (*models.Trip, error) {
	if !requester.IsAdmin() {
		return nil, models.NewForbiddenError("Admin access required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewValidationError("%s", err.Error())
	}

	date, err := models.ParseTripDate(req.Date)
	if err != nil {
		return nil, err
	}

	tripType := strings.TrimSpace(req.Type)
	if tripType == "" {
		tripType = models.DefaultTripType
	}

	trip := &models.Trip{
		ID:             uuid.New(),
		From:           strings.TrimSpace(req.From),
		To:             strings.TrimSpace(req.To),
		Date:           date,
		Time:           strings.TrimSpace(req.Time),
		Price:          *req.Price,
		TotalSeats:     *req.TotalSeats,
		AvailableSeats: *req.TotalSeats,
		BookedSeats:    pq.StringArray{},
		Type:           tripType,
	}

	if err := s.store.Create(ctx, trip); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":     trip.ID,
		"from":        trip.From,
		"to":          trip.To,
		"total_seats": trip.TotalSeats,
	}).Info("Trip created")

	s.afterChange(ctx, "trip_created", requester.UserID, trip.ID, nil)
	return trip, nil
}

// UpdateTrip applies a partial update under the trip lock. Changing
// totalSeats recomputes availableSeats and fails when fewer seats would
// remain than are already booked.
func (s *TripService) UpdateTrip(ctx context.Context, requester models.Requester, id uuid.UUID, req models.UpdateTripRequest) (*models.Trip, error) {
	if !requester.IsAdmin() {
		return nil, models.NewForbiddenError("Admin access required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewValidationError("%s", err.Error())
	}

	var date *time.Time
	if req.Date != nil {
		parsed, err := models.ParseTripDate(*req.Date)
		if err != nil {
			return nil, err
		}
		date = &parsed
	}

	trip, err := s.store.UpdateLocked(ctx, id, func(trip *models.Trip) error {
		if req.TotalSeats != nil {
			available := *req.TotalSeats - len(trip.BookedSeats)
			if available < 0 {
				return models.NewValidationError(
					"Cannot set totalSeats to %d: %d seats are already booked", *req.TotalSeats, len(trip.BookedSeats))
			}
			trip.TotalSeats = *req.TotalSeats
			trip.AvailableSeats = available
		}
		if req.From != nil {
			trip.From = strings.TrimSpace(*req.From)
		}
		if req.To != nil {
			trip.To = strings.TrimSpace(*req.To)
		}
		if date != nil {
			trip.Date = *date
		}
		if req.Time != nil {
			trip.Time = strings.TrimSpace(*req.Time)
		}
		if req.Price != nil {
			trip.Price = *req.Price
		}
		if req.Type != nil {
			trip.Type = strings.TrimSpace(*req.Type)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":         trip.ID,
		"total_seats":     trip.TotalSeats,
		"available_seats": trip.AvailableSeats,
	}).Info("Trip updated")

	s.afterChange(ctx, "trip_updated", requester.UserID, trip.ID, nil)
	return trip, nil
}

// DeleteTrip removes a trip together with its bookings. Admin only.
func (s *TripService) DeleteTrip(ctx context.Context, requester models.Requester, id uuid.UUID) error {
	if !requester.IsAdmin() {
		return models.NewForbiddenError("Admin access required")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.WithField("trip_id", id).Info("Trip deleted")
	s.afterChange(ctx, "trip_deleted", requester.UserID, id, nil)
	return nil
}

func (s *TripService) afterChange(ctx context.Context, action string, actorID, tripID uuid.UUID, details map[string]interface{}) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate trip cache")
	}
	s.audit.LogTripEvent(ctx, action, actorID, tripID, details)
}
