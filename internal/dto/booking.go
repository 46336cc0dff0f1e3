package dto

import (
	"time"

	"github.com/evently/evently/internal/domain"
)

// CreateBookingRequest represents a request to book tickets
type CreateBookingRequest struct {
	EventID  string `json:"event_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=10"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	EventID       string     `json:"event_id"`
	Quantity      int        `json:"quantity"`
	TotalPrice    float64    `json:"total_price"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	TaskID        string     `json:"task_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

// CancelBookingResponse represents the result of a cancellation
type CancelBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Restored  int    `json:"restored_tickets"`
}

// BookingFromDomain converts a domain Booking to a BookingResponse
func BookingFromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:            b.ID,
		UserID:        b.UserID,
		EventID:       b.EventID,
		Quantity:      b.Quantity,
		TotalPrice:    b.TotalPrice,
		Status:        string(b.Status),
		FailureReason: b.FailureReason,
		TaskID:        b.TaskID,
		CreatedAt:     b.CreatedAt,
		ConfirmedAt:   b.ConfirmedAt,
		CancelledAt:   b.CancelledAt,
	}
}

// BookingsFromDomain converts a slice of domain Bookings
func BookingsFromDomain(bookings []*domain.Booking) []*BookingResponse {
	out := make([]*BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, BookingFromDomain(b))
	}
	return out
}
