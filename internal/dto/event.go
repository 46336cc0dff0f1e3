package dto

import (
	"time"

	"github.com/evently/evently/internal/domain"
)

// CreateEventRequest represents an admin request to create an event
type CreateEventRequest struct {
	Name           string    `json:"name" binding:"required"`
	Description    string    `json:"description"`
	Organizer      string    `json:"organizer"`
	Venue          string    `json:"venue"`
	StartsAt       time.Time `json:"starts_at" binding:"required"`
	Capacity       int       `json:"capacity" binding:"required,min=0"`
	PricePerTicket float64   `json:"price_per_ticket" binding:"min=0"`
	IsActive       *bool     `json:"is_active"`
}

// UpdateEventRequest represents an admin request to update an event.
// Nil fields are left unchanged.
type UpdateEventRequest struct {
	Name           *string    `json:"name"`
	Description    *string    `json:"description"`
	Organizer      *string    `json:"organizer"`
	Venue          *string    `json:"venue"`
	StartsAt       *time.Time `json:"starts_at"`
	Capacity       *int       `json:"capacity"`
	PricePerTicket *float64   `json:"price_per_ticket"`
	IsActive       *bool      `json:"is_active"`
}

// NotifyEventUsersRequest represents an admin request to email everyone
// holding a booking for an event
type NotifyEventUsersRequest struct {
	Subject string `json:"subject" binding:"required"`
	Body    string `json:"body" binding:"required"`
}

// NotifyEventUsersResponse acknowledges the queued notification task
type NotifyEventUsersResponse struct {
	TaskID  string `json:"task_id"`
	EventID string `json:"event_id"`
}

// EventResponse represents an event in API responses
type EventResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Organizer      string    `json:"organizer"`
	Venue          string    `json:"venue"`
	StartsAt       time.Time `json:"starts_at"`
	Capacity       int       `json:"capacity"`
	Available      int       `json:"available"`
	PricePerTicket float64   `json:"price_per_ticket"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// AvailabilityResponse represents an event's remaining inventory
type AvailabilityResponse struct {
	EventID   string    `json:"event_id"`
	Available int       `json:"available"`
	Capacity  int       `json:"capacity"`
	Cached    bool      `json:"cached"`
	FetchedAt time.Time `json:"fetched_at"`
}

// EventFromDomain converts a domain Event to an EventResponse
func EventFromDomain(e *domain.Event) *EventResponse {
	return &EventResponse{
		ID:             e.ID,
		Name:           e.Name,
		Description:    e.Description,
		Organizer:      e.Organizer,
		Venue:          e.Venue,
		StartsAt:       e.StartsAt,
		Capacity:       e.Capacity,
		Available:      e.Available(),
		PricePerTicket: e.PricePerTicket,
		IsActive:       e.IsActive,
		CreatedAt:      e.CreatedAt,
	}
}

// EventsFromDomain converts a slice of domain Events
func EventsFromDomain(events []*domain.Event) []*EventResponse {
	out := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, EventFromDomain(e))
	}
	return out
}

// AvailabilityFromDomain converts a domain Availability
func AvailabilityFromDomain(a *domain.Availability) *AvailabilityResponse {
	return &AvailabilityResponse{
		EventID:   a.EventID,
		Available: a.Available,
		Capacity:  a.Capacity,
		Cached:    a.FromCache,
		FetchedAt: a.FetchedAt,
	}
}
