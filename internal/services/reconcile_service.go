package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/models"
)

// TripLister lists the trips to reconcile
type TripLister interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// InventoryStore recomputes one trip's inventory under its row lock
type InventoryStore interface {
	ReconcileTrip(ctx context.Context, tripID uuid.UUID, rebuild func(trip *models.Trip, activeSeats [][]string) error) (before models.Trip, after *models.Trip, changed bool, err error)
}

// ReconcileReport summarizes a reconciliation run
type ReconcileReport struct {
	TripsChecked  int           `json:"tripsChecked"`
	TripsRepaired int           `json:"tripsRepaired"`
	Failures      int           `json:"failures"`
	Duration      time.Duration `json:"duration"`
}

// ReconcileService rebuilds each trip's booked seats from its active
// bookings and repairs trips whose stored inventory has drifted
type ReconcileService struct {
	trips     TripLister
	inventory InventoryStore
	cache     TripCache
	logger    *logrus.Logger
}

// NewReconcileService creates a new reconcile service. cache may be nil.
func NewReconcileService(trips TripLister, inventory InventoryStore, cache TripCache, logger *logrus.Logger) *ReconcileService {
	if cache == nil {
		cache = noopTripCache{}
	}
	return &ReconcileService{
		trips:     trips,
		inventory: inventory,
		cache:     cache,
		logger:    logger,
	}
}

// Run checks every trip. A failing trip is logged and counted; the run
// continues with the next one.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()

	ids, err := s.trips.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		before, after, changed, err := s.inventory.ReconcileTrip(ctx, id, func(trip *models.Trip, active [][]string) error {
			RebuildInventory(trip, active)
			return CheckInvariant(trip)
		})
		report.TripsChecked++
		if err != nil {
			report.Failures++
			s.logger.WithError(err).WithField("trip_id", id).Error("Failed to reconcile trip")
			continue
		}
		if changed {
			report.TripsRepaired++
			s.logger.WithFields(logrus.Fields{
				"trip_id":          id,
				"before_available": before.AvailableSeats,
				"before_booked":    len(before.BookedSeats),
				"after_available":  after.AvailableSeats,
				"after_booked":     len(after.BookedSeats),
				"total_seats":      after.TotalSeats,
			}).Warn("Repaired drifted seat inventory")
		}
	}

	if report.TripsRepaired > 0 {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate trip cache")
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}
