package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/models"
)

// Routing keys of booking events
const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// BookingEvent is published after a booking change has been committed.
// It carries enough for consumers to notify or report without querying the
// database.
type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   uuid.UUID `json:"bookingId"`
	BookingCode string    `json:"bookingCode"`
	UserID      uuid.UUID `json:"userId"`
	TripID      uuid.UUID `json:"tripId"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	TripDate    time.Time `json:"tripDate,omitempty"`
	Seats       []string  `json:"seats"`
	TotalAmount float64   `json:"totalAmount"`
	Passenger   string    `json:"passengerEmail"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewBookingEvent builds the event for a booking, including trip details
// when the trip is attached
func NewBookingEvent(eventType string, booking *models.Booking, now time.Time) BookingEvent {
	event := BookingEvent{
		Type:        eventType,
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		UserID:      booking.UserID,
		TripID:      booking.TripID,
		Seats:       append([]string{}, booking.Seats...),
		TotalAmount: booking.TotalAmount,
		Passenger:   booking.Email,
		OccurredAt:  now.UTC(),
	}
	if booking.Trip != nil {
		event.From = booking.Trip.From
		event.To = booking.Trip.To
		event.TripDate = booking.Trip.Date
	}
	return event
}

// EventPublisher delivers booking events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, BookingEvent) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

// AMQPPublisher publishes booking events to a durable RabbitMQ topic exchange
// with the event type as routing key
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	url      string
	exchange string
	logger   *logrus.Logger
}

// NewAMQPPublisher connects to the broker and declares the exchange
func NewAMQPPublisher(url, exchange string, logger *logrus.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: exchange declare failed: %w", err)
	}

	p.conn = conn
	p.ch = ch
	return nil
}

// Publish sends one persistent JSON message. A closed connection is
// re-dialled once before giving up.
func (p *AMQPPublisher) Publish(ctx context.Context, event BookingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		p.logger.Warn("rabbitmq: connection lost, reconnecting")
		if err := p.connect(); err != nil {
			return err
		}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

// Close closes the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
