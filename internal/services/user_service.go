package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/database"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/pkg/validator"
	"golang.org/x/crypto/bcrypt"
)

// upcomingTripsOnDashboard is how many upcoming trips Stats lists
const upcomingTripsOnDashboard = 5

// TripCounter provides the trip figures of the admin dashboard
type TripCounter interface {
	Count(ctx context.Context) (int, error)
	CountUpcoming(ctx context.Context, now time.Time) (int, error)
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]models.Trip, error)
}

// BookingCounter provides the booking figures of the admin dashboard
type BookingCounter interface {
	Count(ctx context.Context) (int, error)
}

// UserService manages profiles and the admin user views
type UserService struct {
	users      UserStore
	tokens     RefreshTokenStore
	trips      TripCounter
	bookings   BookingCounter
	validator  *validator.Validator
	bcryptCost int
	audit      *AuditService
	logger     *logrus.Logger
	now        func() time.Time
}

// NewUserService creates a new user service
func NewUserService(
	users UserStore,
	tokens RefreshTokenStore,
	trips TripCounter,
	bookings BookingCounter,
	v *validator.Validator,
	bcryptCost int,
	audit *AuditService,
	logger *logrus.Logger,
) *UserService {
	return &UserService{
		users:      users,
		tokens:     tokens,
		trips:      trips,
		bookings:   bookings,
		validator:  v,
		bcryptCost: bcryptCost,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// UpdateProfile applies a partial profile update
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req models.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewValidationError("%s", err.Error())
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && !strings.EqualFold(strings.TrimSpace(*req.Email), user.Email) {
		taken, err := s.users.EmailTaken(ctx, *req.Email, userID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, models.NewValidationError("Email is already taken")
		}
		user.Email = *req.Email
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = s.validator.Phone().Sanitize(*req.Phone)
	}
	if req.Address != nil {
		user.Address = strings.TrimSpace(*req.Address)
	}
	if req.DateOfBirth != nil {
		if strings.TrimSpace(*req.DateOfBirth) == "" {
			user.DateOfBirth = models.NullTime{}
		} else {
			dob, err := models.ParseTripDate(*req.DateOfBirth)
			if err != nil {
				return nil, models.NewValidationError("Invalid dateOfBirth, expected YYYY-MM-DD")
			}
			user.DateOfBirth = models.NullTime{NullTime: sql.NullTime{Time: dob, Valid: true}}
		}
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil, models.NewValidationError("Email is already taken")
		}
		return nil, err
	}

	s.logger.WithField("user_id", userID).Info("Profile updated")
	return user, nil
}

// ChangePassword replaces the password after checking the current one and
// revokes every refresh token of the user
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return models.NewValidationError("%s", err.Error())
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return models.NewValidationError("Current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return models.NewInternalError("Failed to hash password", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to revoke refresh tokens after password change")
	}

	s.audit.LogPasswordChange(ctx, userID)
	return nil
}

// ListUsers returns every account newest first. Admin only.
func (s *UserService) ListUsers(ctx context.Context, requester models.Requester) ([]models.User, error) {
	if !requester.IsAdmin() {
		return nil, models.NewForbiddenError("Admin access required")
	}
	return s.users.List(ctx)
}

// Stats returns the admin dashboard figures. Admin only.
func (s *UserService) Stats(ctx context.Context, requester models.Requester) (*models.DashboardStats, error) {
	if !requester.IsAdmin() {
		return nil, models.NewForbiddenError("Admin access required")
	}

	now := s.now()
	stats := &models.DashboardStats{}
	var err error

	if stats.TotalUsers, err = s.users.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalTrips, err = s.trips.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalBookings, err = s.bookings.Count(ctx); err != nil {
		return nil, err
	}
	if stats.UpcomingDepartures, err = s.trips.CountUpcoming(ctx, now); err != nil {
		return nil, err
	}
	if stats.UpcomingTrips, err = s.trips.ListUpcoming(ctx, now, upcomingTripsOnDashboard); err != nil {
		return nil, err
	}
	return stats, nil
}
