package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/evently/evently/internal/domain"
	pkgredis "github.com/evently/evently/pkg/redis"
	"github.com/evently/evently/pkg/telemetry"
)

// availabilityKey builds the cache key for an event's availability
func availabilityKey(eventID string) string {
	return fmt.Sprintf("event:availability:%s", eventID)
}

// RedisAvailabilityCache implements AvailabilityCache using Redis
type RedisAvailabilityCache struct {
	client *pkgredis.Client
}

// NewRedisAvailabilityCache creates a new RedisAvailabilityCache
func NewRedisAvailabilityCache(client *pkgredis.Client) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client}
}

// Get returns the cached availability, or (nil, nil) on a miss
func (c *RedisAvailabilityCache) Get(ctx context.Context, eventID string) (*domain.Availability, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.availability.get")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	data, err := c.client.Client().Get(ctx, availabilityKey(eventID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("hit", false))
			span.SetStatus(codes.Ok, "miss")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read availability cache: %w", err)
	}

	var availability domain.Availability
	if err := json.Unmarshal([]byte(data), &availability); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to decode availability cache: %w", err)
	}
	availability.FromCache = true

	span.SetAttributes(attribute.Bool("hit", true))
	span.SetStatus(codes.Ok, "")
	return &availability, nil
}

// Set stores the availability with a TTL
func (c *RedisAvailabilityCache) Set(ctx context.Context, availability *domain.Availability, ttl time.Duration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.availability.set")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", availability.EventID),
		attribute.Int("available", availability.Available),
	)

	data, err := json.Marshal(availability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to encode availability: %w", err)
	}

	if err := c.client.Client().Set(ctx, availabilityKey(availability.EventID), data, ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write availability cache: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Invalidate drops the cached entry for an event
func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.availability.invalidate")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	if err := c.client.Client().Del(ctx, availabilityKey(eventID)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to invalidate availability cache: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Ensure RedisAvailabilityCache implements AvailabilityCache
var _ AvailabilityCache = (*RedisAvailabilityCache)(nil)
