package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingTerminal      = errors.New("booking is already in a terminal state")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrInvalidTransition    = errors.New("invalid booking status transition")

	// Event errors
	ErrEventNotFound = errors.New("event not found")
	ErrEventInactive = errors.New("event is not active")
	ErrEventStarted  = errors.New("event has already started")

	// Inventory errors
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrEventBusy            = errors.New("event is busy, please retry")

	// Task errors
	ErrTaskNotFound = errors.New("task not found")

	// Validation errors
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidEventID   = errors.New("invalid event id")
	ErrInvalidBookingID = errors.New("invalid booking id")
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrInvalidCapacity  = errors.New("invalid capacity")
	ErrInvalidPrice     = errors.New("price cannot be negative")

	// Rate limit errors
	ErrRateLimited = errors.New("too many booking attempts")
)

// InsufficientCapacityError reports how many tickets were requested versus
// how many remain. Unwraps to ErrInsufficientCapacity.
type InsufficientCapacityError struct {
	EventID   string
	Requested int
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for event %s: requested %d, available %d",
		e.EventID, e.Requested, e.Available)
}

func (e *InsufficientCapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// NewInsufficientCapacityError creates an insufficient capacity error
func NewInsufficientCapacityError(eventID string, requested, available int) error {
	return &InsufficientCapacityError{EventID: eventID, Requested: requested, Available: available}
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrTaskNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidBookingStatus)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrBookingTerminal) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrEventInactive) ||
		errors.Is(err, ErrEventStarted)
}

// IsRetryableError checks if the caller should retry the operation
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrEventBusy)
}
