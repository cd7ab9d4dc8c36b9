package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an application error. It doubles as the machine
// readable code returned to API clients.
type ErrorKind string

const (
	KindValidation           ErrorKind = "VALIDATION_ERROR"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindSeatUnavailable      ErrorKind = "SEAT_UNAVAILABLE"
	KindInsufficientCapacity ErrorKind = "INSUFFICIENT_CAPACITY"
	KindAlreadyCancelled     ErrorKind = "ALREADY_CANCELLED"
	KindForbidden            ErrorKind = "FORBIDDEN"
	KindUnauthenticated      ErrorKind = "UNAUTHENTICATED"
	KindRateLimited          ErrorKind = "RATE_LIMITED"
	KindInternal             ErrorKind = "INTERNAL_ERROR"
)

// AppError is the error type returned by services and repositories for
// conditions the API reports to clients.
type AppError struct {
	Kind    ErrorKind
	Message string
	Seats   []string // conflicting seat labels for SeatUnavailable
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *AppError) Unwrap() error { return e.Err }

// NewValidationError reports malformed or missing input
func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing resource, e.g. NewNotFoundError("Trip")
func NewNotFoundError(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: resource + " not found"}
}

// NewSeatUnavailableError names every seat that is already taken
func NewSeatUnavailableError(seats []string) *AppError {
	return &AppError{
		Kind:    KindSeatUnavailable,
		Message: fmt.Sprintf("Seats %s are already booked", strings.Join(seats, ", ")),
		Seats:   seats,
	}
}

// NewInsufficientCapacityError reports a request for more seats than remain
func NewInsufficientCapacityError() *AppError {
	return &AppError{Kind: KindInsufficientCapacity, Message: "Not enough available seats"}
}

// NewAlreadyCancelledError reports a second cancellation of a booking
func NewAlreadyCancelledError() *AppError {
	return &AppError{Kind: KindAlreadyCancelled, Message: "Booking is already cancelled"}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func NewUnauthenticatedError(message string) *AppError {
	return &AppError{Kind: KindUnauthenticated, Message: message}
}

// NewInternalError wraps an unexpected failure. The message is logged, not
// shown to clients.
func NewInternalError(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// IsKind reports whether err carries an AppError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
