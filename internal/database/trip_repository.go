package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/travelhub/booking-backend/internal/models"
)

const tripColumns = `id, origin, destination, trip_date, departure_time, price,
	total_seats, available_seats, booked_seats, trip_type, created_at, updated_at`

// likeEscaper escapes LIKE metacharacters so filters match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// TripRepository handles trip database operations
type TripRepository struct {
	db DB
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db DB) *TripRepository {
	return &TripRepository{db: db}
}

// List returns trips matching the filter ordered by departure date
func (r *TripRepository) List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if from := strings.TrimSpace(filter.From); from != "" {
		args = append(args, "%"+likeEscaper.Replace(from)+"%")
		conditions = append(conditions, fmt.Sprintf("origin ILIKE $%d", len(args)))
	}
	if to := strings.TrimSpace(filter.To); to != "" {
		args = append(args, "%"+likeEscaper.Replace(to)+"%")
		conditions = append(conditions, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}
	if filter.Date != nil {
		start, end := models.DayBounds(*filter.Date)
		args = append(args, start, end)
		conditions = append(conditions, fmt.Sprintf("trip_date >= $%d AND trip_date < $%d", len(args)-1, len(args)))
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY trip_date ASC, created_at ASC`

	trips := []models.Trip{}
	if err := r.db.SelectContext(ctx, &trips, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// GetByID returns a trip by ID
func (r *TripRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.GetContext(ctx, &trip, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError("Trip")
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// GetByIDs returns the trips with the given IDs keyed by ID
func (r *TripRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Trip, error) {
	result := make(map[uuid.UUID]*models.Trip, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var trips []models.Trip
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &trips, query, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("failed to load trips: %w", err)
	}

	for i := range trips {
		result[trips[i].ID] = &trips[i]
	}
	return result, nil
}

// Create inserts a new trip
func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) error {
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	if trip.BookedSeats == nil {
		trip.BookedSeats = pq.StringArray{}
	}

	query := `
		INSERT INTO trips (
			id, origin, destination, trip_date, departure_time, price,
			total_seats, available_seats, booked_seats, trip_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		trip.ID, trip.From, trip.To, trip.Date, trip.Time, trip.Price,
		trip.TotalSeats, trip.AvailableSeats, trip.BookedSeats, trip.Type,
	).Scan(&trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

// UpdateLocked loads the trip under a row lock, lets apply modify it and
// saves the result in the same transaction. An error from apply aborts the
// update and is returned unchanged.
func (r *TripRepository) UpdateLocked(ctx context.Context, id uuid.UUID, apply func(trip *models.Trip) error) (*models.Trip, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	trip, err := lockTrip(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := apply(trip); err != nil {
		return nil, err
	}

	query := `
		UPDATE trips SET
			origin = $2, destination = $3, trip_date = $4, departure_time = $5,
			price = $6, total_seats = $7, available_seats = $8, booked_seats = $9,
			trip_type = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err = tx.QueryRowxContext(ctx, query,
		trip.ID, trip.From, trip.To, trip.Date, trip.Time, trip.Price,
		trip.TotalSeats, trip.AvailableSeats, trip.BookedSeats, trip.Type,
	).Scan(&trip.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update trip: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return trip, nil
}

// Delete removes a trip and its bookings. The bookings are locked before the
// trip, the same order cancellation takes, so the two cannot deadlock.
func (r *TripRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var bookingIDs []uuid.UUID
	if err := tx.SelectContext(ctx, &bookingIDs, `SELECT id FROM bookings WHERE trip_id = $1 FOR UPDATE`, id); err != nil {
		return fmt.Errorf("failed to lock trip bookings: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NewNotFoundError("Trip")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListIDs returns the IDs of every trip
func (r *TripRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM trips ORDER BY trip_date ASC`); err != nil {
		return nil, fmt.Errorf("failed to list trip ids: %w", err)
	}
	return ids, nil
}

// Count returns the number of trips
func (r *TripRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM trips`); err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return count, nil
}

// CountUpcoming returns the number of trips departing at or after now
func (r *TripRepository) CountUpcoming(ctx context.Context, now time.Time) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM trips WHERE trip_date >= $1`, now); err != nil {
		return 0, fmt.Errorf("failed to count upcoming trips: %w", err)
	}
	return count, nil
}

// ListUpcoming returns the next trips departing at or after now
func (r *TripRepository) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]models.Trip, error) {
	trips := []models.Trip{}
	query := `SELECT ` + tripColumns + ` FROM trips WHERE trip_date >= $1 ORDER BY trip_date ASC LIMIT $2`
	if err := r.db.SelectContext(ctx, &trips, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list upcoming trips: %w", err)
	}
	return trips, nil
}

// lockTrip loads a trip with a row lock held until tx ends. Every seat
// inventory change goes through this lock.
func lockTrip(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	err := tx.GetContext(ctx, &trip, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError("Trip")
		}
		return nil, fmt.Errorf("failed to lock trip: %w", err)
	}
	if trip.BookedSeats == nil {
		trip.BookedSeats = pq.StringArray{}
	}
	return &trip, nil
}

// saveInventory writes the seat fields of a locked trip
func saveInventory(ctx context.Context, tx *sqlx.Tx, trip *models.Trip) error {
	query := `
		UPDATE trips SET booked_seats = $2, available_seats = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	if err := tx.QueryRowxContext(ctx, query, trip.ID, trip.BookedSeats, trip.AvailableSeats).Scan(&trip.UpdatedAt); err != nil {
		return fmt.Errorf("failed to update trip seats: %w", err)
	}
	return nil
}

// saveRebuiltInventory writes the seat fields and total capacity of a
// locked trip in one statement so the inventory check sees the final row
func saveRebuiltInventory(ctx context.Context, tx *sqlx.Tx, trip *models.Trip) error {
	query := `
		UPDATE trips SET total_seats = $2, booked_seats = $3, available_seats = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	if err := tx.QueryRowxContext(ctx, query, trip.ID, trip.TotalSeats, trip.BookedSeats, trip.AvailableSeats).Scan(&trip.UpdatedAt); err != nil {
		return fmt.Errorf("failed to update trip inventory: %w", err)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
