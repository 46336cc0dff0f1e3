package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusProcessing BookingStatus = "processing"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusFailed     BookingStatus = "failed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusProcessing, BookingStatusConfirmed,
		BookingStatusFailed, BookingStatusCancelled:
		return true
	}
	return false
}

// IsTerminal checks if the status admits no further transitions
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusFailed || s == BookingStatusCancelled
}

// HoldsInventory checks if a booking in this status counts against the
// event's committed inventory. Pending bookings exist only before the
// inventory commit, so they never hold tickets.
func (s BookingStatus) HoldsInventory() bool {
	return s == BookingStatusProcessing || s == BookingStatusConfirmed
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// validTransitions maps each status to the statuses it may move to
var validTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusProcessing, BookingStatusFailed},
	BookingStatusProcessing: {BookingStatusConfirmed, BookingStatusFailed, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusCancelled},
}

// CanTransition checks if a booking may move from one status to another
func CanTransition(from, to BookingStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking represents a ticket booking for an event
type Booking struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	UserEmail     string        `json:"user_email,omitempty"`
	EventID       string        `json:"event_id"`
	Quantity      int           `json:"quantity"`
	TotalPrice    float64       `json:"total_price"`
	Status        BookingStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	TaskID        string        `json:"task_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
}

// Validate validates all booking fields
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrInvalidBookingID
	}
	if strings.TrimSpace(b.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(b.EventID) == "" {
		return ErrInvalidEventID
	}
	if b.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if b.TotalPrice < 0 {
		return ErrInvalidPrice
	}
	if !b.Status.IsValid() {
		return ErrInvalidBookingStatus
	}
	return nil
}

// IsConfirmed checks if the booking is confirmed
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// IsTerminal checks if the booking is in a terminal state
func (b *Booking) IsTerminal() bool {
	return b.Status.IsTerminal()
}

// CanCancel checks if the booking can be cancelled by its owner
func (b *Booking) CanCancel() bool {
	return CanTransition(b.Status, BookingStatusCancelled)
}

// Cancel marks the booking as cancelled
func (b *Booking) Cancel() error {
	if b.IsTerminal() {
		return ErrBookingTerminal
	}
	if !b.CanCancel() {
		return ErrInvalidTransition
	}
	now := time.Now()
	b.Status = BookingStatusCancelled
	b.CancelledAt = &now
	b.UpdatedAt = now
	return nil
}

// Confirm marks the booking as confirmed
func (b *Booking) Confirm() error {
	if !CanTransition(b.Status, BookingStatusConfirmed) {
		if b.IsTerminal() {
			return ErrBookingTerminal
		}
		return ErrInvalidTransition
	}
	now := time.Now()
	b.Status = BookingStatusConfirmed
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// Fail marks the booking as failed with a reason
func (b *Booking) Fail(reason string) error {
	if !CanTransition(b.Status, BookingStatusFailed) {
		if b.IsTerminal() {
			return ErrBookingTerminal
		}
		return ErrInvalidTransition
	}
	b.Status = BookingStatusFailed
	b.FailureReason = reason
	b.UpdatedAt = time.Now()
	return nil
}
