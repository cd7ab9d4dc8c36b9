package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/config"
	"github.com/travelhub/booking-backend/internal/database"
	"github.com/travelhub/booking-backend/internal/services"
)

// Rebuilds every trip's booked seats from its active bookings once and
// exits. Useful after manual edits to the bookings table.
func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "Maximum time for the whole run")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, cached trip lists will expire on their own")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	trips := database.NewTripRepository(db)
	reconciler := services.NewReconcileService(
		trips,
		database.NewBookingRepository(db, trips),
		services.NewRedisTripCache(redisClient, cfg.Redis.TripCacheTTL),
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := reconciler.Run(ctx)
	if err != nil {
		logger.Fatalf("Reconciliation failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"trips_checked":  report.TripsChecked,
		"trips_repaired": report.TripsRepaired,
		"failures":       report.Failures,
		"duration_ms":    report.Duration.Milliseconds(),
	}).Info("Reconciliation finished")

	if report.Failures > 0 {
		os.Exit(1)
	}
}
