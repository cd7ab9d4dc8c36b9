package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var (
	tripRowColumns = []string{
		"id", "origin", "destination", "trip_date", "departure_time", "price",
		"total_seats", "available_seats", "booked_seats", "trip_type", "created_at", "updated_at",
	}
	bookingRowColumns = []string{
		"id", "user_id", "trip_id", "seats", "total_amount", "status", "booking_code",
		"passenger_name", "passenger_email", "passenger_phone", "created_at", "updated_at",
	}
	userRowColumns = []string{
		"id", "name", "email", "password_hash", "phone", "address", "date_of_birth",
		"role", "profile_image", "created_at", "updated_at",
	}
)

// newMockDB returns a PostgresDB backed by sqlmock
func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &PostgresDB{DB: sqlx.NewDb(mockDB, "postgres")}, mock
}

func tripRow(rows *sqlmock.Rows, id uuid.UUID, total, available int, booked string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id.String(), "Lagos", "Abuja", now.Add(48*time.Hour), "09:30", 120.0,
		int64(total), int64(available), []byte(booked), "Flight", now, now,
	)
}

func bookingRow(rows *sqlmock.Rows, id, userID, tripID uuid.UUID, seats string, status string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id.String(), userID.String(), tripID.String(), []byte(seats), 240.0, status, "BK-20260101-ABC123",
		"Ada Obi", "ada@example.com", "+2348012345678", now, now,
	)
}
