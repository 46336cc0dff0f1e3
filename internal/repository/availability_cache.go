package repository

import (
	"context"
	"time"

	"github.com/evently/evently/internal/domain"
)

// AvailabilityCache defines the interface for the cached availability view
type AvailabilityCache interface {
	// Get returns the cached availability, or (nil, nil) on a miss
	Get(ctx context.Context, eventID string) (*domain.Availability, error)

	// Set stores the availability with a TTL
	Set(ctx context.Context, availability *domain.Availability, ttl time.Duration) error

	// Invalidate drops the cached entry for an event
	Invalidate(ctx context.Context, eventID string) error
}
