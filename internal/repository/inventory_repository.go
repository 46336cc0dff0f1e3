package repository

import (
	"context"

	"github.com/evently/evently/internal/domain"
)

// ReserveParams carries the inputs of a reservation attempt
type ReserveParams struct {
	EventID         string
	UserID          string
	UserEmail       string
	Quantity        int
	TaskMaxAttempts int
}

// InventoryRepository owns the transactions that move ticket inventory.
// Reserve and Release are the only writers of events.committed_count.
type InventoryRepository interface {
	// Reserve checks capacity under a row lock and, in the same
	// transaction, commits the inventory, creates the booking in
	// processing status and enqueues its confirmation task. Returns
	// ErrEventBusy when the event row lock cannot be acquired within
	// the lock timeout.
	Reserve(ctx context.Context, params *ReserveParams) (*domain.Booking, error)

	// Release moves a booking from one of the expected statuses to a
	// terminal status and restores its tickets to the event when the
	// booking was holding inventory. The status guard makes a repeated
	// release a no-op error instead of a double restore.
	Release(ctx context.Context, bookingID string, from []domain.BookingStatus, to domain.BookingStatus, reason string) (*domain.Booking, error)
}
