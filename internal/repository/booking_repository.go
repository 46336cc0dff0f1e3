package repository

import (
	"context"

	"github.com/evently/evently/internal/domain"
)

// BookingRepository defines the interface for booking data access
type BookingRepository interface {
	// GetByID retrieves a booking by its ID
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetByUserID retrieves a page of a user's bookings, newest first,
	// along with the total count
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error)

	// UpdateStatusIf moves a booking from one status to another. Returns
	// ErrInvalidTransition when the booking is no longer in the expected
	// status, so redelivered work detects it already ran.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.BookingStatus) error

	// MarkFailed moves a booking from the expected status to failed with
	// a reason. Same conditional semantics as UpdateStatusIf.
	MarkFailed(ctx context.Context, id string, from domain.BookingStatus, reason string) error

	// ListEmailsByEvent lists distinct emails of users holding
	// non-terminal bookings for an event
	ListEmailsByEvent(ctx context.Context, eventID string) ([]string, error)
}
