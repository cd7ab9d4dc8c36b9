package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/database"
	"github.com/travelhub/booking-backend/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// memoryDB is an in-memory stand-in for the Postgres stores. Each trip has
// its own mutex playing the part of the row lock, and callbacks work on
// copies that are only stored when they succeed, like a rolled back
// transaction.
type memoryDB struct {
	mu        sync.Mutex
	trips     map[uuid.UUID]*models.Trip
	bookings  map[uuid.UUID]*models.Booking
	tripLocks map[uuid.UUID]*sync.Mutex
	clock     time.Time

	// duplicateCodes makes the next n booking inserts fail with a code collision
	duplicateCodes int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		trips:     make(map[uuid.UUID]*models.Trip),
		bookings:  make(map[uuid.UUID]*models.Booking),
		tripLocks: make(map[uuid.UUID]*sync.Mutex),
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func cloneTrip(t *models.Trip) *models.Trip {
	c := *t
	c.BookedSeats = append(pq.StringArray{}, t.BookedSeats...)
	return &c
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	c.Seats = append(pq.StringArray{}, b.Seats...)
	if b.Trip != nil {
		c.Trip = cloneTrip(b.Trip)
	}
	return &c
}

func (m *memoryDB) addTrip(total int, date time.Time, price float64) *models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()

	trip := &models.Trip{
		ID:             uuid.New(),
		From:           "Lagos",
		To:             "Abuja",
		Date:           date,
		Time:           "09:30",
		Price:          price,
		TotalSeats:     total,
		AvailableSeats: total,
		BookedSeats:    pq.StringArray{},
		Type:           models.DefaultTripType,
	}
	m.trips[trip.ID] = trip
	m.tripLocks[trip.ID] = &sync.Mutex{}
	return cloneTrip(trip)
}

func (m *memoryDB) trip(id uuid.UUID) *models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trips[id]; ok {
		return cloneTrip(t)
	}
	return nil
}

func (m *memoryDB) booking(id uuid.UUID) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[id]; ok {
		return cloneBooking(b)
	}
	return nil
}

func (m *memoryDB) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memoryDB) lockTrip(id uuid.UUID) (*sync.Mutex, *models.Trip, error) {
	m.mu.Lock()
	lock, ok := m.tripLocks[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil, models.NewNotFoundError("Trip")
	}

	lock.Lock()
	m.mu.Lock()
	trip, ok := m.trips[id]
	m.mu.Unlock()
	if !ok {
		lock.Unlock()
		return nil, nil, models.NewNotFoundError("Trip")
	}
	return lock, cloneTrip(trip), nil
}

func (m *memoryDB) saveTrip(trip *models.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = cloneTrip(trip)
}

type memoryBookingStore struct{ *memoryDB }

func (s memoryBookingStore) CreateWithReservation(ctx context.Context, tripID uuid.UUID, build func(trip *models.Trip) (*models.Booking, error)) (*models.Booking, error) {
	lock, trip, err := s.lockTrip(tripID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	booking, err := build(trip)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicateCodes > 0 {
		s.duplicateCodes--
		return nil, database.ErrDuplicateBookingCode
	}
	for _, existing := range s.bookings {
		if existing.BookingCode == booking.BookingCode {
			return nil, database.ErrDuplicateBookingCode
		}
	}

	booking.CreatedAt = s.tick()
	booking.UpdatedAt = booking.CreatedAt
	s.trips[trip.ID] = cloneTrip(trip)
	s.bookings[booking.ID] = cloneBooking(booking)

	booking.Trip = trip
	return booking, nil
}

func (s memoryBookingStore) CancelWithRelease(ctx context.Context, bookingID uuid.UUID, authorize func(*models.Booking) error, release func(*models.Trip, *models.Booking) error) (*models.Booking, error) {
	current := s.booking(bookingID)
	if current == nil {
		return nil, models.NewNotFoundError("Booking")
	}

	lock, trip, err := s.lockTrip(current.TripID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	// re-read under the lock so concurrent cancels see each other
	booking := s.booking(bookingID)
	if err := authorize(booking); err != nil {
		return nil, err
	}
	if err := release(trip, booking); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	booking.Status = models.BookingStatusCancelled
	booking.UpdatedAt = s.tick()
	s.trips[trip.ID] = cloneTrip(trip)
	s.bookings[booking.ID] = cloneBooking(booking)

	booking.Trip = trip
	return booking, nil
}

func (s memoryBookingStore) DeleteWithRelease(ctx context.Context, bookingID uuid.UUID, release func(*models.Trip, *models.Booking) error) (*models.Booking, error) {
	current := s.booking(bookingID)
	if current == nil {
		return nil, models.NewNotFoundError("Booking")
	}

	lock, trip, err := s.lockTrip(current.TripID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	booking := s.booking(bookingID)
	if booking.Status.IsActive() {
		if err := release(trip, booking); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[trip.ID] = cloneTrip(trip)
	delete(s.bookings, bookingID)
	return booking, nil
}

func (s memoryBookingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking := s.booking(id)
	if booking == nil {
		return nil, models.NewNotFoundError("Booking")
	}
	booking.Trip = s.trip(booking.TripID)
	return booking, nil
}

func (s memoryBookingStore) list(filter func(*models.Booking) bool) []models.Booking {
	s.mu.Lock()
	var out []models.Booking
	for _, b := range s.bookings {
		if filter(b) {
			out = append(out, *cloneBooking(b))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	for i := range out {
		out[i].Trip = s.trip(out[i].TripID)
	}
	return out
}

func (s memoryBookingStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return s.list(func(b *models.Booking) bool { return b.UserID == userID }), nil
}

func (s memoryBookingStore) ListAll(ctx context.Context) ([]models.Booking, error) {
	return s.list(func(*models.Booking) bool { return true }), nil
}

type memoryTripStore struct{ *memoryDB }

func (s memoryTripStore) List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Trip{}
	for _, t := range s.trips {
		out = append(out, *cloneTrip(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s memoryTripStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	if trip := s.trip(id); trip != nil {
		return trip, nil
	}
	return nil, models.NewNotFoundError("Trip")
}

func (s memoryTripStore) Create(ctx context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip.CreatedAt = s.tick()
	trip.UpdatedAt = trip.CreatedAt
	s.trips[trip.ID] = cloneTrip(trip)
	s.tripLocks[trip.ID] = &sync.Mutex{}
	return nil
}

func (s memoryTripStore) UpdateLocked(ctx context.Context, id uuid.UUID, apply func(*models.Trip) error) (*models.Trip, error) {
	lock, trip, err := s.lockTrip(id)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	if err := apply(trip); err != nil {
		return nil, err
	}
	s.saveTrip(trip)
	return trip, nil
}

func (s memoryTripStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[id]; !ok {
		return models.NewNotFoundError("Trip")
	}
	delete(s.trips, id)
	for bid, b := range s.bookings {
		if b.TripID == id {
			delete(s.bookings, bid)
		}
	}
	return nil
}

// recordingPublisher keeps published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []BookingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// memoryAuditSink keeps written audit entries
type memoryAuditSink struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *memoryAuditSink) Insert(ctx context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memoryAuditSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}
