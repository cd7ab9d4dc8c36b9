package database

import (
	"context"
	"fmt"
)

// migrations are idempotent and applied in order on startup
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		phone         TEXT NOT NULL DEFAULT '',
		address       TEXT NOT NULL DEFAULT '',
		date_of_birth DATE,
		role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		profile_image TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)`,

	`CREATE TABLE IF NOT EXISTS trips (
		id              UUID PRIMARY KEY,
		origin          TEXT NOT NULL,
		destination     TEXT NOT NULL,
		trip_date       TIMESTAMPTZ NOT NULL,
		departure_time  TEXT NOT NULL,
		price           NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
		total_seats     INTEGER NOT NULL CHECK (total_seats >= 1),
		available_seats INTEGER NOT NULL CHECK (available_seats >= 0),
		booked_seats    TEXT[] NOT NULL DEFAULT '{}',
		trip_type       TEXT NOT NULL DEFAULT 'Flight',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT trips_seat_inventory_check
			CHECK (available_seats + cardinality(booked_seats) = total_seats)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_trip_date ON trips (trip_date)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id              UUID PRIMARY KEY,
		user_id         UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		trip_id         UUID NOT NULL REFERENCES trips (id) ON DELETE CASCADE,
		seats           TEXT[] NOT NULL CHECK (cardinality(seats) > 0),
		total_amount    NUMERIC(12, 2) NOT NULL,
		status          TEXT NOT NULL DEFAULT 'confirmed'
			CHECK (status IN ('pending', 'confirmed', 'cancelled')),
		booking_code    TEXT NOT NULL,
		passenger_name  TEXT NOT NULL,
		passenger_email TEXT NOT NULL,
		passenger_phone TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + bookingCodeConstraint + ` ON bookings (booking_code)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_trip_id ON bookings (trip_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings (created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens (user_id)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          BIGSERIAL PRIMARY KEY,
		user_id     UUID,
		action      TEXT NOT NULL,
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id   UUID,
		ip_address  TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		details     JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at DESC)`,
}

// Migrate creates the schema if it does not exist yet
func Migrate(ctx context.Context, db DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
