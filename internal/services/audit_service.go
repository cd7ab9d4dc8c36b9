package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/internal/utils"
)

// AuditSink persists audit entries
type AuditSink interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// AuditService records security and booking events. A nil *AuditService or
// a nil sink records nothing. Write failures are logged and never returned,
// so auditing cannot fail a request.
type AuditService struct {
	sink   AuditSink
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(sink AuditSink, logger *logrus.Logger) *AuditService {
	return &AuditService{
		sink:   sink,
		logger: logger,
	}
}

// AuditEvent represents an event to be logged
type AuditEvent struct {
	UserID     *uuid.UUID             // nil for pre-authentication events
	Action     string                 // e.g. "login", "booking_created"
	EntityType string                 // e.g. "user", "booking", "trip"
	EntityID   *uuid.UUID
	Details    map[string]interface{}
}

// LogRegister logs a new account
func (s *AuditService) LogRegister(ctx context.Context, userID uuid.UUID, email string) {
	s.logEvent(ctx, AuditEvent{
		UserID:     &userID,
		Action:     "register",
		EntityType: "user",
		EntityID:   &userID,
		Details:    map[string]interface{}{"email": email},
	})
}

// LogLogin logs a login attempt. userID is nil when the email is unknown.
func (s *AuditService) LogLogin(ctx context.Context, userID *uuid.UUID, email string, success bool) {
	action := "login"
	if !success {
		action = "login_failed"
	}
	s.logEvent(ctx, AuditEvent{
		UserID:     userID,
		Action:     action,
		EntityType: "user",
		EntityID:   userID,
		Details:    map[string]interface{}{"email": email, "success": success},
	})
}

// LogLogout logs a logout event
func (s *AuditService) LogLogout(ctx context.Context, userID uuid.UUID) {
	s.logEvent(ctx, AuditEvent{
		UserID:     &userID,
		Action:     "logout",
		EntityType: "user",
		EntityID:   &userID,
	})
}

// LogTokenRefresh logs a refresh token usage event
func (s *AuditService) LogTokenRefresh(ctx context.Context, userID uuid.UUID, success bool) {
	action := "token_refresh_success"
	if !success {
		action = "token_refresh_failed"
	}
	s.logEvent(ctx, AuditEvent{
		UserID:     &userID,
		Action:     action,
		EntityType: "token",
		Details:    map[string]interface{}{"success": success},
	})
}

// LogPasswordChange logs a password change
func (s *AuditService) LogPasswordChange(ctx context.Context, userID uuid.UUID) {
	s.logEvent(ctx, AuditEvent{
		UserID:     &userID,
		Action:     "password_changed",
		EntityType: "user",
		EntityID:   &userID,
	})
}

// LogRateLimitViolation logs a request rejected by the rate limiter
func (s *AuditService) LogRateLimitViolation(ctx context.Context, scope string, retryAfter time.Time) {
	s.logEvent(ctx, AuditEvent{
		Action:     "rate_limit_violation",
		EntityType: "rate_limit",
		Details:    map[string]interface{}{"scope": scope, "retry_after": retryAfter},
	})
}

// LogBookingEvent logs a booking change made by actorID
func (s *AuditService) LogBookingEvent(ctx context.Context, action string, actorID uuid.UUID, booking *models.Booking) {
	bookingID := booking.ID
	s.logEvent(ctx, AuditEvent{
		UserID:     &actorID,
		Action:     action,
		EntityType: "booking",
		EntityID:   &bookingID,
		Details: map[string]interface{}{
			"booking_code": booking.BookingCode,
			"trip_id":      booking.TripID,
			"owner_id":     booking.UserID,
			"seats":        []string(booking.Seats),
			"total_amount": booking.TotalAmount,
		},
	})
}

// LogTripEvent logs an admin change to a trip
func (s *AuditService) LogTripEvent(ctx context.Context, action string, actorID uuid.UUID, tripID uuid.UUID, details map[string]interface{}) {
	s.logEvent(ctx, AuditEvent{
		UserID:     &actorID,
		Action:     action,
		EntityType: "trip",
		EntityID:   &tripID,
		Details:    details,
	})
}

// logEvent enriches the event with client details from ctx and writes it
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) {
	if s == nil || s.sink == nil {
		return
	}

	meta := RequestMetaFrom(ctx)
	details := event.Details
	if details == nil {
		details = make(map[string]interface{})
	}
	if meta.UserAgent != "" {
		details["device_info"] = utils.ParseUserAgent(meta.UserAgent)
	}

	raw, err := json.Marshal(details)
	if err != nil {
		s.logger.WithError(err).WithField("action", event.Action).Warn("Failed to encode audit details")
		raw = []byte("{}")
	}

	entry := &models.AuditLog{
		Action:     event.Action,
		EntityType: event.EntityType,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    string(raw),
	}
	if event.UserID != nil {
		entry.UserID = uuid.NullUUID{UUID: *event.UserID, Valid: true}
	}
	if event.EntityID != nil {
		entry.EntityID = uuid.NullUUID{UUID: *event.EntityID, Valid: true}
	}

	if err := s.sink.Insert(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", event.Action).Warn("Failed to write audit event")
	}
}
