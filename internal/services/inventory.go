package services

import (
	"fmt"
	"strings"

	"github.com/travelhub/booking-backend/internal/models"
)

// NormalizeSeats trims seat labels and rejects empty or repeated ones
func NormalizeSeats(seats []string) ([]string, error) {
	if len(seats) == 0 {
		return nil, models.NewValidationError("At least one seat is required")
	}

	seen := make(map[string]bool, len(seats))
	out := make([]string, 0, len(seats))
	for _, seat := range seats {
		label := strings.TrimSpace(seat)
		if label == "" {
			return nil, models.NewValidationError("Seat labels cannot be empty")
		}
		if seen[label] {
			return nil, models.NewValidationError("Seat %s is selected more than once", label)
		}
		seen[label] = true
		out = append(out, label)
	}
	return out, nil
}

// Reserve marks seats as booked on a trip the caller holds a lock on.
// Seat conflicts are checked before capacity. On error the trip is left
// unchanged.
func Reserve(trip *models.Trip, seats []string) error {
	seats, err := NormalizeSeats(seats)
	if err != nil {
		return err
	}

	booked := make(map[string]bool, len(trip.BookedSeats))
	for _, seat := range trip.BookedSeats {
		booked[seat] = true
	}

	var conflicts []string
	for _, seat := range seats {
		if booked[seat] {
			conflicts = append(conflicts, seat)
		}
	}
	if len(conflicts) > 0 {
		return models.NewSeatUnavailableError(conflicts)
	}

	if len(seats) > trip.AvailableSeats {
		return models.NewInsufficientCapacityError()
	}

	trip.BookedSeats = append(trip.BookedSeats, seats...)
	trip.AvailableSeats -= len(seats)
	return nil
}

// Release returns seats to a locked trip. Labels that are not booked are
// ignored, so available seats grow only by the number actually removed,
// which is returned.
func Release(trip *models.Trip, seats []string) int {
	release := make(map[string]bool, len(seats))
	for _, seat := range seats {
		release[strings.TrimSpace(seat)] = true
	}

	kept := make([]string, 0, len(trip.BookedSeats))
	removed := 0
	for _, seat := range trip.BookedSeats {
		if release[seat] {
			removed++
			delete(release, seat)
			continue
		}
		kept = append(kept, seat)
	}

	trip.BookedSeats = kept
	trip.AvailableSeats += removed
	return removed
}

// CheckInvariant reports a trip whose seat counters disagree or whose booked
// list holds a label twice
func CheckInvariant(trip *models.Trip) error {
	if trip.AvailableSeats < 0 {
		return fmt.Errorf("trip %s has negative available seats (%d)", trip.ID, trip.AvailableSeats)
	}
	if trip.AvailableSeats+len(trip.BookedSeats) != trip.TotalSeats {
		return fmt.Errorf("trip %s seat counts disagree: available %d + booked %d != total %d",
			trip.ID, trip.AvailableSeats, len(trip.BookedSeats), trip.TotalSeats)
	}

	seen := make(map[string]bool, len(trip.BookedSeats))
	for _, seat := range trip.BookedSeats {
		if seen[seat] {
			return fmt.Errorf("trip %s has seat %s booked twice", trip.ID, seat)
		}
		seen[seat] = true
	}
	return nil
}

// RebuildInventory recomputes a trip's booked seats from its active bookings.
// Seats held by more than one booking are kept once. When the capacity can no
// longer hold every booked seat, total seats are raised to fit.
func RebuildInventory(trip *models.Trip, activeSeats [][]string) {
	seen := make(map[string]bool)
	booked := make([]string, 0)
	for _, seats := range activeSeats {
		for _, seat := range seats {
			if seen[seat] {
				continue
			}
			seen[seat] = true
			booked = append(booked, seat)
		}
	}

	if len(booked) > trip.TotalSeats {
		trip.TotalSeats = len(booked)
	}
	trip.BookedSeats = booked
	trip.AvailableSeats = trip.TotalSeats - len(booked)
}
