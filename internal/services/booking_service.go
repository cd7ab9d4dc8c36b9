package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/database"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/pkg/validator"
)

// maxBookingCodeAttempts bounds retries after a booking code collision
const maxBookingCodeAttempts = 5

// BookingStore is the persistence used by BookingService. Every method that
// changes seats runs its callbacks inside one transaction holding the trip
// row lock.
type BookingStore interface {
	CreateWithReservation(ctx context.Context, tripID uuid.UUID, build func(trip *models.Trip) (*models.Booking, error)) (*models.Booking, error)
	CancelWithRelease(ctx context.Context, bookingID uuid.UUID, authorize func(booking *models.Booking) error, release func(trip *models.Trip, booking *models.Booking) error) (*models.Booking, error)
	DeleteWithRelease(ctx context.Context, bookingID uuid.UUID, release func(trip *models.Trip, booking *models.Booking) error) (*models.Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	ListAll(ctx context.Context) ([]models.Booking, error)
}

// BookingService creates, cancels and lists bookings
type BookingService struct {
	store     BookingStore
	validator *validator.Validator
	cache     TripCache
	events    EventPublisher
	audit     *AuditService
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingService creates a new booking service. cache, events and audit
// may be nil.
func NewBookingService(
	store BookingStore,
	v *validator.Validator,
	cache TripCache,
	events EventPublisher,
	audit *AuditService,
	logger *logrus.Logger,
) *BookingService {
	if cache == nil {
		cache = noopTripCache{}
	}
	if events == nil {
		events = NoopPublisher{}
	}
	return &BookingService{
		store:     store,
		validator: v,
		cache:     cache,
		events:    events,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

// CanAccessBooking reports whether the requester may read or cancel the booking
func CanAccessBooking(requester models.Requester, booking *models.Booking) bool {
	return requester.IsAdmin() || booking.UserID == requester.UserID
}

// GenerateBookingCode returns a code of the form BK-YYYYMMDD-XXXXXX
func GenerateBookingCode(now time.Time) (string, error) {
	randomBytes := make([]byte, 3)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return fmt.Sprintf("BK-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(randomBytes))), nil
}

// CreateBooking reserves the requested seats and records a confirmed booking
// in one transaction
func (s *BookingService) CreateBooking(ctx context.Context, userID uuid.UUID, req models.CreateBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewValidationError("%s", err.Error())
	}

	seats, err := NormalizeSeats(req.Seats)
	if err != nil {
		return nil, err
	}

	passenger := models.PassengerInfo{
		Name:  strings.TrimSpace(req.PassengerInfo.Name),
		Email: strings.TrimSpace(req.PassengerInfo.Email),
		Phone: s.validator.Phone().Sanitize(req.PassengerInfo.Phone),
	}

	var booking *models.Booking
	for attempt := 1; attempt <= maxBookingCodeAttempts; attempt++ {
		code, err := GenerateBookingCode(s.now())
		if err != nil {
			return nil, models.NewInternalError("Failed to generate booking code", err)
		}

		booking, err = s.store.CreateWithReservation(ctx, req.TripID, func(trip *models.Trip) (*models.Booking, error) {
			if err := Reserve(trip, seats); err != nil {
				return nil, err
			}
			return &models.Booking{
				ID:            uuid.New(),
				UserID:        userID,
				TripID:        trip.ID,
				Seats:         pq.StringArray(seats),
				TotalAmount:   trip.Price * float64(len(seats)),
				Status:        models.BookingStatusConfirmed,
				BookingCode:   code,
				PassengerInfo: passenger,
			}, nil
		})
		if errors.Is(err, database.ErrDuplicateBookingCode) {
			s.logger.WithFields(logrus.Fields{
				"booking_code": code,
				"attempt":      attempt,
			}).Warn("Booking code collision, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	if booking == nil {
		return nil, models.NewInternalError("Failed to allocate a unique booking code", database.ErrDuplicateBookingCode)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"booking_code": booking.BookingCode,
		"trip_id":      booking.TripID,
		"user_id":      userID,
		"seats":        []string(booking.Seats),
	}).Info("Booking created")

	s.afterChange(ctx, booking, EventBookingConfirmed, userID)
	return booking, nil
}

// CancelBooking releases the booking's seats and marks it cancelled. Only the
// owner or an admin may cancel, and only once.
func (s *BookingService) CancelBooking(ctx context.Context, requester models.Requester, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.store.CancelWithRelease(ctx, bookingID,
		func(booking *models.Booking) error {
			if !CanAccessBooking(requester, booking) {
				return models.NewForbiddenError("Not authorized to cancel this booking")
			}
			if booking.Status == models.BookingStatusCancelled {
				return models.NewAlreadyCancelledError()
			}
			return nil
		},
		func(trip *models.Trip, booking *models.Booking) error {
			if released := Release(trip, booking.Seats); released != len(booking.Seats) {
				s.logger.WithFields(logrus.Fields{
					"booking_id": booking.ID,
					"trip_id":    trip.ID,
					"expected":   len(booking.Seats),
					"released":   released,
				}).Warn("Cancelled booking held seats missing from trip inventory")
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"trip_id":    booking.TripID,
		"user_id":    requester.UserID,
	}).Info("Booking cancelled")

	s.afterChange(ctx, booking, EventBookingCancelled, requester.UserID)
	return booking, nil
}

// DeleteBooking removes a booking for good, returning its seats first when it
// was still active. Admin only.
func (s *BookingService) DeleteBooking(ctx context.Context, requester models.Requester, bookingID uuid.UUID) error {
	if !requester.IsAdmin() {
		return models.NewForbiddenError("Admin access required")
	}

	booking, err := s.store.DeleteWithRelease(ctx, bookingID, func(trip *models.Trip, booking *models.Booking) error {
		Release(trip, booking.Seats)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"trip_id":    booking.TripID,
		"admin_id":   requester.UserID,
	}).Info("Booking deleted")

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate trip cache")
	}
	s.audit.LogBookingEvent(ctx, "booking_deleted", requester.UserID, booking)
	return nil
}

// GetBooking returns a booking visible to the requester
func (s *BookingService) GetBooking(ctx context.Context, requester models.Requester, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !CanAccessBooking(requester, booking) {
		return nil, models.NewForbiddenError("Not authorized to view this booking")
	}
	return booking, nil
}

// ListMyBookings splits a user's bookings into upcoming and past trips,
// each newest booking first
func (s *BookingService) ListMyBookings(ctx context.Context, userID uuid.UUID) (*models.MyBookings, error) {
	bookings, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return PartitionBookings(bookings, s.now()), nil
}

// ListAllBookings returns every booking newest first. Admin only.
func (s *BookingService) ListAllBookings(ctx context.Context, requester models.Requester) ([]models.Booking, error) {
	if !requester.IsAdmin() {
		return nil, models.NewForbiddenError("Admin access required")
	}
	return s.store.ListAll(ctx)
}

// PartitionBookings puts bookings whose trip departs at or after now in
// Upcoming and the rest in Past, keeping the input order
func PartitionBookings(bookings []models.Booking, now time.Time) *models.MyBookings {
	result := &models.MyBookings{
		Upcoming: []models.Booking{},
		Past:     []models.Booking{},
	}
	for _, booking := range bookings {
		if booking.Trip != nil && booking.Trip.IsUpcoming(now) {
			result.Upcoming = append(result.Upcoming, booking)
		} else {
			result.Past = append(result.Past, booking)
		}
	}
	return result
}

// afterChange runs the post-commit side effects of a create or cancel.
// Failures are logged and never reach the caller.
func (s *BookingService) afterChange(ctx context.Context, booking *models.Booking, eventType string, actorID uuid.UUID) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate trip cache")
	}

	action := "booking_created"
	if eventType == EventBookingCancelled {
		action = "booking_cancelled"
	}
	s.audit.LogBookingEvent(ctx, action, actorID, booking)

	if err := s.events.Publish(ctx, NewBookingEvent(eventType, booking, s.now())); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to publish booking event")
	}
}
