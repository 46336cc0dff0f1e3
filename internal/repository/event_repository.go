package repository

import (
	"context"

	"github.com/evently/evently/internal/domain"
)

// EventRepository defines the interface for event data access
type EventRepository interface {
	// Create creates a new event record in the database
	Create(ctx context.Context, event *domain.Event) error

	// GetByID retrieves an event by its ID
	GetByID(ctx context.Context, id string) (*domain.Event, error)

	// List retrieves events ordered by start time
	List(ctx context.Context, onlyActive bool, limit, offset int) ([]*domain.Event, int, error)

	// Update updates an event's mutable fields
	Update(ctx context.Context, event *domain.Event) error

	// SetActive toggles whether an event accepts bookings
	SetActive(ctx context.Context, id string, active bool) error

	// Availability reads the authoritative remaining ticket count
	Availability(ctx context.Context, id string) (*domain.Availability, error)

	// GetAnalytics aggregates booking activity for one event
	GetAnalytics(ctx context.Context, id string) (*domain.EventAnalytics, error)

	// ListAnalytics aggregates booking activity across all events
	ListAnalytics(ctx context.Context) ([]*domain.EventAnalytics, error)
}
