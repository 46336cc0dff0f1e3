package domain

import "time"

// BookingEventType identifies a booking lifecycle event on the wire
type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventFailed    BookingEventType = "booking.failed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
)

// BookingEvent is the message published to the booking-events topic
type BookingEvent struct {
	EventID   string           `json:"event_id"`
	Type      BookingEventType `json:"type"`
	Booking   *Booking         `json:"booking"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewBookingEvent creates a booking event envelope
func NewBookingEvent(eventType BookingEventType, booking *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:   eventID,
		Type:      eventType,
		Booking:   booking,
		Timestamp: time.Now(),
	}
}

// Key returns the Kafka partition key. Partitioning by booking ID keeps
// one booking's lifecycle events in order.
func (e *BookingEvent) Key() string {
	return e.Booking.ID
}
