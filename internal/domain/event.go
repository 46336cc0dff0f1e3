package domain

import (
	"strings"
	"time"
)

// Event represents a bookable event with a fixed ticket inventory.
// CommittedCount is the number of tickets held by non-terminal bookings;
// it only moves inside a row-locked transaction.
type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Organizer      string    `json:"organizer"`
	Venue          string    `json:"venue"`
	StartsAt       time.Time `json:"starts_at"`
	Capacity       int       `json:"capacity"`
	CommittedCount int       `json:"committed_count"`
	PricePerTicket float64   `json:"price_per_ticket"`
	IsActive       bool      `json:"is_active"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Available returns the number of tickets still bookable
func (e *Event) Available() int {
	available := e.Capacity - e.CommittedCount
	if available < 0 {
		return 0
	}
	return available
}

// HasStartedAt checks if the event has started at a specific time
func (e *Event) HasStartedAt(t time.Time) bool {
	return !t.Before(e.StartsAt)
}

// CanBook checks whether the event accepts new bookings at a specific time
func (e *Event) CanBook(t time.Time) error {
	if !e.IsActive {
		return ErrEventInactive
	}
	if e.HasStartedAt(t) {
		return ErrEventStarted
	}
	return nil
}

// Validate validates all event fields
func (e *Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrInvalidEventID
	}
	if e.Capacity < 0 {
		return ErrInvalidCapacity
	}
	if e.PricePerTicket < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// EventAnalytics aggregates booking activity for a single event
type EventAnalytics struct {
	EventID          string  `json:"event_id"`
	EventName        string  `json:"event_name"`
	Capacity         int     `json:"capacity"`
	TicketsCommitted int     `json:"tickets_committed"`
	TicketsAvailable int     `json:"tickets_available"`
	TotalBookings    int     `json:"total_bookings"`
	Confirmed        int     `json:"confirmed"`
	Cancelled        int     `json:"cancelled"`
	Failed           int     `json:"failed"`
	Revenue          float64 `json:"revenue"`
	UtilizationPct   float64 `json:"utilization_pct"`
}

// Availability is the cached view of an event's remaining inventory
type Availability struct {
	EventID   string    `json:"event_id"`
	Available int       `json:"available"`
	Capacity  int       `json:"capacity"`
	FetchedAt time.Time `json:"fetched_at"`
	FromCache bool      `json:"from_cache"`
}
