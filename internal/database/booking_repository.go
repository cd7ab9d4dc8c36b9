package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/travelhub/booking-backend/internal/models"
)

// bookingCodeConstraint is the unique index guarding booking codes
const bookingCodeConstraint = "bookings_booking_code_key"

const bookingColumns = `id, user_id, trip_id, seats, total_amount, status, booking_code,
	passenger_name, passenger_email, passenger_phone, created_at, updated_at`

// ErrDuplicateBookingCode is returned when a generated booking code already
// exists. The whole create transaction has been rolled back at that point.
var ErrDuplicateBookingCode = errors.New("booking code already exists")

// BookingRepository handles booking database operations. Operations that
// touch seats lock the trip row so reservations on one trip are serialized.
type BookingRepository struct {
	db    DB
	trips *TripRepository
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db DB, trips *TripRepository) *BookingRepository {
	return &BookingRepository{db: db, trips: trips}
}

// CreateWithReservation locks the trip, calls build to reserve seats on it
// and produce the booking, then writes the booking and the trip's new seat
// inventory in one transaction.
func (r *BookingRepository) CreateWithReservation(
	ctx context.Context,
	tripID uuid.UUID,
	build func(trip *models.Trip) (*models.Booking, error),
) (*models.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	trip, err := lockTrip(ctx, tx, tripID)
	if err != nil {
		return nil, err
	}

	booking, err := build(trip)
	if err != nil {
		return nil, err
	}

	if err := saveInventory(ctx, tx, trip); err != nil {
		return nil, err
	}

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}

	query := `
		INSERT INTO bookings (
			id, user_id, trip_id, seats, total_amount, status, booking_code,
			passenger_name, passenger_email, passenger_phone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.TripID, booking.Seats, booking.TotalAmount,
		booking.Status, booking.BookingCode,
		booking.Name, booking.Email, booking.Phone,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, bookingCodeConstraint) {
			return nil, ErrDuplicateBookingCode
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	booking.Trip = trip
	return booking, nil
}

// CancelWithRelease locks the booking, lets authorize reject the request,
// then locks the trip, lets release return seats to it and marks the booking
// cancelled, all in one transaction.
func (r *BookingRepository) CancelWithRelease(
	ctx context.Context,
	bookingID uuid.UUID,
	authorize func(booking *models.Booking) error,
	release func(trip *models.Trip, booking *models.Booking) error,
) (*models.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	booking, err := lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := authorize(booking); err != nil {
		return nil, err
	}

	trip, err := lockTrip(ctx, tx, booking.TripID)
	if err != nil {
		return nil, err
	}

	if err := release(trip, booking); err != nil {
		return nil, err
	}

	if err := saveInventory(ctx, tx, trip); err != nil {
		return nil, err
	}

	query := `UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`
	if err := tx.QueryRowxContext(ctx, query, booking.ID, models.BookingStatusCancelled).Scan(&booking.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	booking.Status = models.BookingStatusCancelled

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	booking.Trip = trip
	return booking, nil
}

// DeleteWithRelease removes a booking. Seats of an active booking are
// returned to the trip in the same transaction.
func (r *BookingRepository) DeleteWithRelease(
	ctx context.Context,
	bookingID uuid.UUID,
	release func(trip *models.Trip, booking *models.Booking) error,
) (*models.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	booking, err := lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status.IsActive() {
		trip, err := lockTrip(ctx, tx, booking.TripID)
		if err != nil {
			return nil, err
		}
		if err := release(trip, booking); err != nil {
			return nil, err
		}
		if err := saveInventory(ctx, tx, trip); err != nil {
			return nil, err
		}
		booking.Trip = trip
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, booking.ID); err != nil {
		return nil, fmt.Errorf("failed to delete booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return booking, nil
}

// GetByID returns a booking with its trip attached
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError("Booking")
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	bookings := []models.Booking{booking}
	if err := r.attachTrips(ctx, bookings); err != nil {
		return nil, err
	}
	return &bookings[0], nil
}

// ListByUser returns a user's bookings newest first with trips attached
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &bookings, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}

	if err := r.attachTrips(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// bookingWithUser is a booking row joined with its owner's name and email
type bookingWithUser struct {
	models.Booking
	OwnerName  string `db:"owner_name"`
	OwnerEmail string `db:"owner_email"`
}

// ListAll returns every booking newest first with owner and trip attached
func (r *BookingRepository) ListAll(ctx context.Context) ([]models.Booking, error) {
	query := `
		SELECT b.id, b.user_id, b.trip_id, b.seats, b.total_amount, b.status, b.booking_code,
			b.passenger_name, b.passenger_email, b.passenger_phone, b.created_at, b.updated_at,
			u.name AS owner_name, u.email AS owner_email
		FROM bookings b
		JOIN users u ON u.id = b.user_id
		ORDER BY b.created_at DESC`

	var rows []bookingWithUser
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]models.Booking, len(rows))
	for i, row := range rows {
		bookings[i] = row.Booking
		bookings[i].User = &models.UserSummary{
			ID:    row.UserID,
			Name:  row.OwnerName,
			Email: row.OwnerEmail,
		}
	}

	if err := r.attachTrips(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// Count returns the number of bookings
func (r *BookingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM bookings`); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// ReconcileTrip recomputes a trip's booked seats from its active bookings
// under the trip lock. It returns the trip before and after, and whether the
// stored inventory had drifted.
func (r *BookingRepository) ReconcileTrip(
	ctx context.Context,
	tripID uuid.UUID,
	rebuild func(trip *models.Trip, activeSeats [][]string) error,
) (before models.Trip, after *models.Trip, changed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return before, nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	trip, err := lockTrip(ctx, tx, tripID)
	if err != nil {
		return before, nil, false, err
	}
	before = *trip
	before.BookedSeats = append(pq.StringArray{}, trip.BookedSeats...)

	var seatRows []pq.StringArray
	query := `SELECT seats FROM bookings WHERE trip_id = $1 AND status <> $2 ORDER BY created_at ASC`
	if err := tx.SelectContext(ctx, &seatRows, query, tripID, models.BookingStatusCancelled); err != nil {
		return before, nil, false, fmt.Errorf("failed to load active seats: %w", err)
	}

	active := make([][]string, len(seatRows))
	for i, seats := range seatRows {
		active[i] = seats
	}

	if err := rebuild(trip, active); err != nil {
		return before, nil, false, err
	}

	changed = before.TotalSeats != trip.TotalSeats ||
		before.AvailableSeats != trip.AvailableSeats ||
		!equalSeats(before.BookedSeats, trip.BookedSeats)
	if !changed {
		return before, trip, false, nil
	}

	if err := saveRebuiltInventory(ctx, tx, trip); err != nil {
		return before, nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return before, nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return before, trip, true, nil
}

// lockBooking loads a booking with a row lock held until tx ends
func lockBooking(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := tx.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError("Booking")
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// attachTrips loads the trips of the given bookings in one query
func (r *BookingRepository) attachTrips(ctx context.Context, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	seen := make(map[uuid.UUID]bool, len(bookings))
	ids := make([]uuid.UUID, 0, len(bookings))
	for _, b := range bookings {
		if !seen[b.TripID] {
			seen[b.TripID] = true
			ids = append(ids, b.TripID)
		}
	}

	trips, err := r.trips.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	for i := range bookings {
		bookings[i].Trip = trips[bookings[i].TripID]
	}
	return nil
}

func equalSeats(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
