package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelhub/booking-backend/internal/models"
)

func newBookingRepo(db DB) *BookingRepository {
	return NewBookingRepository(db, NewTripRepository(db))
}

func TestBookingRepositoryCreateWithReservation(t *testing.T) {
	ctx := context.Background()

	build := func(userID uuid.UUID) func(trip *models.Trip) (*models.Booking, error) {
		return func(trip *models.Trip) (*models.Booking, error) {
			trip.BookedSeats = append(trip.BookedSeats, "B1", "B2")
			trip.AvailableSeats -= 2
			return &models.Booking{
				UserID:      userID,
				TripID:      trip.ID,
				Seats:       pq.StringArray{"B1", "B2"},
				TotalAmount: trip.Price * 2,
				Status:      models.BookingStatusConfirmed,
				BookingCode: "BK-20260101-ABC123",
				PassengerInfo: models.PassengerInfo{
					Name: "Ada Obi", Email: "ada@example.com", Phone: "+2348012345678",
				},
			}, nil
		}
	}

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		tripID, userID := uuid.New(), uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM trips WHERE id = \$1 FOR UPDATE`).
			WithArgs(tripID).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 10, 9, `{A1}`))
		mock.ExpectQuery(`UPDATE trips SET booked_seats = \$2, available_seats = \$3`).
			WithArgs(tripID, pq.StringArray{"A1", "B1", "B2"}, 7).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WithArgs(sqlmock.AnyArg(), userID, tripID, pq.StringArray{"B1", "B2"}, 240.0,
				models.BookingStatusConfirmed, "BK-20260101-ABC123",
				"Ada Obi", "ada@example.com", "+2348012345678").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectCommit()

		booking, err := repo.CreateWithReservation(ctx, tripID, build(userID))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, booking.ID)
		require.NotNil(t, booking.Trip)
		assert.Equal(t, 7, booking.Trip.AvailableSeats)
		assert.Equal(t, now, booking.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Booking Code", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		tripID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 10, 10, `{}`))
		mock.ExpectQuery(`UPDATE trips SET booked_seats`).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: bookingCodeConstraint})
		mock.ExpectRollback()

		booking, err := repo.CreateWithReservation(ctx, tripID, build(uuid.New()))
		assert.Nil(t, booking)
		assert.ErrorIs(t, err, ErrDuplicateBookingCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Build Error Rolls Back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		tripID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 2, 1, `{A1}`))
		mock.ExpectRollback()

		booking, err := repo.CreateWithReservation(ctx, tripID, func(*models.Trip) (*models.Booking, error) {
			return nil, models.NewSeatUnavailableError([]string{"A1"})
		})
		assert.Nil(t, booking)
		assert.True(t, models.IsKind(err, models.KindSeatUnavailable))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing Trip", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(tripRowColumns))
		mock.ExpectRollback()

		_, err := repo.CreateWithReservation(ctx, uuid.New(), build(uuid.New()))
		assert.True(t, models.IsKind(err, models.KindNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryCancelWithRelease(t *testing.T) {
	ctx := context.Background()

	release := func(trip *models.Trip, booking *models.Booking) error {
		trip.BookedSeats = pq.StringArray{}
		trip.AvailableSeats += len(booking.Seats)
		return nil
	}

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		bookingID, userID, tripID := uuid.New(), uuid.New(), uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(bookingID).
			WillReturnRows(bookingRow(sqlmock.NewRows(bookingRowColumns), bookingID, userID, tripID, `{A1,A2}`, "confirmed"))
		mock.ExpectQuery(`SELECT .* FROM trips WHERE id = \$1 FOR UPDATE`).
			WithArgs(tripID).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 4, 2, `{A1,A2}`))
		mock.ExpectQuery(`UPDATE trips SET booked_seats`).
			WithArgs(tripID, pq.StringArray{}, 4).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectQuery(`UPDATE bookings SET status = \$2`).
			WithArgs(bookingID, models.BookingStatusCancelled).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectCommit()

		booking, err := repo.CancelWithRelease(ctx, bookingID, func(*models.Booking) error { return nil }, release)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		assert.Equal(t, 4, booking.Trip.AvailableSeats)
		assert.Equal(t, "Ada Obi", booking.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Authorize Rejects", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		bookingID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRow(sqlmock.NewRows(bookingRowColumns), bookingID, uuid.New(), uuid.New(), `{A1}`, "cancelled"))
		mock.ExpectRollback()

		_, err := repo.CancelWithRelease(ctx, bookingID, func(b *models.Booking) error {
			if !b.Status.IsActive() {
				return models.NewAlreadyCancelledError()
			}
			return nil
		}, release)
		assert.True(t, models.IsKind(err, models.KindAlreadyCancelled))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows(bookingRowColumns))
		mock.ExpectRollback()

		_, err := repo.CancelWithRelease(ctx, uuid.New(), func(*models.Booking) error { return nil }, release)
		assert.True(t, models.IsKind(err, models.KindNotFound))
		assert.Equal(t, "Booking not found", err.Error())
	})
}

func TestBookingRepositoryDeleteWithRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("Cancelled Booking Skips Trip", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		bookingID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRow(sqlmock.NewRows(bookingRowColumns), bookingID, uuid.New(), uuid.New(), `{A1}`, "cancelled"))
		mock.ExpectExec(`DELETE FROM bookings WHERE id = \$1`).
			WithArgs(bookingID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := repo.DeleteWithRelease(ctx, bookingID, func(*models.Trip, *models.Booking) error {
			t.Fatal("release must not run for a cancelled booking")
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Active Booking Releases Seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		bookingID, tripID := uuid.New(), uuid.New()
		released := false

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRow(sqlmock.NewRows(bookingRowColumns), bookingID, uuid.New(), tripID, `{A1}`, "confirmed"))
		mock.ExpectQuery(`FROM trips WHERE id = \$1 FOR UPDATE`).
			WithArgs(tripID).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 2, 1, `{A1}`))
		mock.ExpectQuery(`UPDATE trips SET booked_seats`).
			WithArgs(tripID, pq.StringArray{}, 2).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectExec(`DELETE FROM bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := repo.DeleteWithRelease(ctx, bookingID, func(trip *models.Trip, _ *models.Booking) error {
			released = true
			trip.BookedSeats = pq.StringArray{}
			trip.AvailableSeats = 2
			return nil
		})
		require.NoError(t, err)
		assert.True(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryListAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := newBookingRepo(db)
	bookingID, userID, tripID := uuid.New(), uuid.New(), uuid.New()

	columns := append(append([]string{}, bookingRowColumns...), "owner_name", "owner_email")
	now := time.Now()
	rows := sqlmock.NewRows(columns).AddRow(
		bookingID.String(), userID.String(), tripID.String(), []byte(`{C3}`), 120.0, "confirmed", "BK-20260101-FFFFFF",
		"Ada Obi", "ada@example.com", "+2348012345678", now, now,
		"Account Owner", "owner@example.com",
	)

	mock.ExpectQuery(`FROM bookings b\s+JOIN users u ON u.id = b.user_id\s+ORDER BY b.created_at DESC`).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT .* FROM trips WHERE id = ANY\(\$1::uuid\[\]\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 10, 9, `{C3}`))

	bookings, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	require.NotNil(t, bookings[0].User)
	assert.Equal(t, "Account Owner", bookings[0].User.Name)
	assert.Equal(t, "owner@example.com", bookings[0].User.Email)
	require.NotNil(t, bookings[0].Trip)
	assert.Equal(t, tripID, bookings[0].Trip.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListByUserEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := newBookingRepo(db)
	userID := uuid.New()

	mock.ExpectQuery(`FROM bookings WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))

	bookings, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryReconcileTrip(t *testing.T) {
	ctx := context.Background()

	// mirrors the service rebuild: union of active seats, capacity grows to fit
	rebuild := func(trip *models.Trip, active [][]string) error {
		booked := pq.StringArray{}
		for _, seats := range active {
			booked = append(booked, seats...)
		}
		if len(booked) > trip.TotalSeats {
			trip.TotalSeats = len(booked)
		}
		trip.BookedSeats = booked
		trip.AvailableSeats = trip.TotalSeats - len(booked)
		return nil
	}

	t.Run("Raises Capacity", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		tripID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM trips WHERE id = \$1 FOR UPDATE`).
			WithArgs(tripID).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 2, 0, `{A1,A2}`))
		mock.ExpectQuery(`SELECT seats FROM bookings WHERE trip_id = \$1 AND status <> \$2`).
			WithArgs(tripID, models.BookingStatusCancelled).
			WillReturnRows(sqlmock.NewRows([]string{"seats"}).AddRow([]byte(`{A1,A2}`)).AddRow([]byte(`{A3}`)))
		mock.ExpectQuery(`UPDATE trips SET total_seats = \$2, booked_seats = \$3, available_seats = \$4`).
			WithArgs(tripID, 3, pq.StringArray{"A1", "A2", "A3"}, 0).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectCommit()

		before, after, changed, err := repo.ReconcileTrip(ctx, tripID, rebuild)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 2, before.TotalSeats)
		assert.Equal(t, 3, after.TotalSeats)
		assert.Equal(t, 0, after.AvailableSeats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Drifted Seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		tripID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 10, 7, `{A1,A2,A3}`))
		mock.ExpectQuery(`SELECT seats FROM bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"seats"}).AddRow([]byte(`{A1}`)))
		mock.ExpectQuery(`UPDATE trips SET total_seats`).
			WithArgs(tripID, 10, pq.StringArray{"A1"}, 9).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectCommit()

		_, after, changed, err := repo.ReconcileTrip(ctx, tripID, rebuild)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 9, after.AvailableSeats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("In Sync", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := newBookingRepo(db)
		tripID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(tripRow(sqlmock.NewRows(tripRowColumns), tripID, 10, 8, `{A1,A2}`))
		mock.ExpectQuery(`SELECT seats FROM bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"seats"}).AddRow([]byte(`{A1,A2}`)))
		mock.ExpectRollback()

		_, _, changed, err := repo.ReconcileTrip(ctx, tripID, rebuild)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
