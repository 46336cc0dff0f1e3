package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evently/evently/internal/dto"
	"github.com/evently/evently/internal/repository"
	"github.com/evently/evently/pkg/logger"
	"github.com/evently/evently/pkg/telemetry"
)

// AvailabilityService defines the interface for availability reads
type AvailabilityService interface {
	// GetAvailability returns an event's remaining tickets, served from
	// cache when fresh
	GetAvailability(ctx context.Context, eventID string) (*dto.AvailabilityResponse, error)
}

// availabilityService implements AvailabilityService. Reads go through
// the cache; the database stays authoritative and cache failures degrade
// to direct reads.
type availabilityService struct {
	eventRepo repository.EventRepository
	cache     repository.AvailabilityCache
	ttl       time.Duration
	log       *logger.Logger
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(eventRepo repository.EventRepository, cache repository.AvailabilityCache, ttl time.Duration) AvailabilityService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &availabilityService{
		eventRepo: eventRepo,
		cache:     cache,
		ttl:       ttl,
		log:       logger.Get(),
	}
}

// GetAvailability returns an event's remaining tickets
func (s *availabilityService) GetAvailability(ctx context.Context, eventID string) (*dto.AvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.get")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, eventID)
		if err != nil {
			s.log.Warn("availability cache read failed",
				zap.String("event_id", eventID), zap.Error(err))
		} else if cached != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			span.SetStatus(codes.Ok, "")
			return dto.AvailabilityFromDomain(cached), nil
		}
	}

	availability, err := s.eventRepo.Availability(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, availability, s.ttl); err != nil {
			s.log.Warn("availability cache write failed",
				zap.String("event_id", eventID), zap.Error(err))
		}
	}

	span.SetAttributes(attribute.Bool("cache_hit", false))
	span.SetStatus(codes.Ok, "")
	return dto.AvailabilityFromDomain(availability), nil
}
