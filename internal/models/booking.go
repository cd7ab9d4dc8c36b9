package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsActive reports whether the booking still holds its seats
func (s BookingStatus) IsActive() bool {
	return s != BookingStatusCancelled
}

// PassengerInfo is the contact of the travelling passenger
type PassengerInfo struct {
	Name  string `json:"name" db:"passenger_name" validate:"required"`
	Email string `json:"email" db:"passenger_email" validate:"required,email"`
	Phone string `json:"phone" db:"passenger_phone" validate:"required,phone"`
}

// Booking is a reservation of specific seats on a trip by a user
type Booking struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	UserID        uuid.UUID      `json:"userId" db:"user_id"`
	TripID        uuid.UUID      `json:"tripId" db:"trip_id"`
	Seats         pq.StringArray `json:"seats" db:"seats"`
	TotalAmount   float64        `json:"totalAmount" db:"total_amount"`
	Status        BookingStatus  `json:"status" db:"status"`
	BookingCode   string         `json:"bookingId" db:"booking_code"`
	PassengerInfo `json:"passengerInfo"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" db:"updated_at"`

	Trip *Trip        `json:"trip,omitempty" db:"-"`
	User *UserSummary `json:"user,omitempty" db:"-"`
}

// CreateBookingRequest is the payload of POST /bookings
type CreateBookingRequest struct {
	TripID        uuid.UUID     `json:"tripId" validate:"required"`
	Seats         []string      `json:"seats" validate:"required,min=1,dive,required"`
	PassengerInfo PassengerInfo `json:"passengerInfo"`
}

// MyBookings is the partitioned result of a user's booking list
type MyBookings struct {
	Upcoming []Booking `json:"upcoming"`
	Past     []Booking `json:"past"`
}
