package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DefaultTripType is used when a trip is created without a type
const DefaultTripType = "Flight"

// Trip represents a scheduled journey with a fixed seat capacity.
// AvailableSeats always equals TotalSeats minus len(BookedSeats).
type Trip struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	From           string         `json:"from" db:"origin"`
	To             string         `json:"to" db:"destination"`
	Date           time.Time      `json:"date" db:"trip_date"`
	Time           string         `json:"time" db:"departure_time"`
	Price          float64        `json:"price" db:"price"`
	TotalSeats     int            `json:"totalSeats" db:"total_seats"`
	AvailableSeats int            `json:"availableSeats" db:"available_seats"`
	BookedSeats    pq.StringArray `json:"bookedSeats" db:"booked_seats"`
	Type           string         `json:"type" db:"trip_type"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// IsUpcoming reports whether the trip departs at or after now
func (t *Trip) IsUpcoming(now time.Time) bool {
	return !t.Date.Before(now)
}

// TripFilter holds the optional list filters. Date matches a whole UTC day.
type TripFilter struct {
	From string     `json:"from,omitempty"`
	To   string     `json:"to,omitempty"`
	Date *time.Time `json:"date,omitempty"`
}

// CreateTripRequest is the admin payload for a new trip
type CreateTripRequest struct {
	From       string   `json:"from" validate:"required"`
	To         string   `json:"to" validate:"required"`
	Date       string   `json:"date" validate:"required"`
	Time       string   `json:"time" validate:"required"`
	Price      *float64 `json:"price" validate:"required,gte=0"`
	TotalSeats *int     `json:"totalSeats" validate:"required,gte=1"`
	Type       string   `json:"type"`
}

// UpdateTripRequest is a partial update; nil fields are left unchanged
type UpdateTripRequest struct {
	From       *string  `json:"from" validate:"omitempty,min=1"`
	To         *string  `json:"to" validate:"omitempty,min=1"`
	Date       *string  `json:"date"`
	Time       *string  `json:"time" validate:"omitempty,min=1"`
	Price      *float64 `json:"price" validate:"omitempty,gte=0"`
	TotalSeats *int     `json:"totalSeats" validate:"omitempty,gte=1"`
	Type       *string  `json:"type" validate:"omitempty,min=1"`
}

// ParseTripDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates
func ParseTripDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, NewValidationError("Invalid date %q, expected YYYY-MM-DD or RFC3339", value)
	}
	return t, nil
}

// DayBounds returns the start of t's UTC day and the start of the next one
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
