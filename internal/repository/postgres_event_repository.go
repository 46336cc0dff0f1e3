package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/pkg/telemetry"
)

// PostgresEventRepository implements EventRepository using PostgreSQL with pgxpool
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

const eventColumns = `
	id, name, description, organizer, venue, starts_at,
	capacity, committed_count, price_per_ticket, is_active,
	version, created_at, updated_at
`

// Create creates a new event record in the database
func (r *PostgresEventRepository) Create(ctx context.Context, event *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	span.SetAttributes(attribute.String("event_id", event.ID))

	if err := event.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	query := `
		INSERT INTO events (
			id, name, description, organizer, venue, starts_at,
			capacity, committed_count, price_per_ticket, is_active,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, 1, $10, $10)
	`

	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Name,
		event.Description,
		event.Organizer,
		event.Venue,
		event.StartsAt,
		event.Capacity,
		event.PricePerTicket,
		event.IsActive,
		now,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves an event by its ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEventRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// List retrieves events ordered by start time
func (r *PostgresEventRepository) List(ctx context.Context, onlyActive bool, limit, offset int) ([]*domain.Event, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list")
	defer span.End()

	span.SetAttributes(
		attribute.Bool("only_active", onlyActive),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	where := ""
	if onlyActive {
		where = "WHERE is_active"
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events "+where).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM events ` + where + `
		ORDER BY starts_at
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("error iterating events: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, total, nil
}

// Update updates an event's mutable fields. Capacity changes do not touch
// committed_count; sold tickets stay sold. The capacity condition is part
// of the statement so a reservation committing after the caller's read
// cannot be stranded above a shrunken capacity.
func (r *PostgresEventRepository) Update(ctx context.Context, event *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.update")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", event.ID))

	if err := event.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	query := `
		UPDATE events SET
			name = $2,
			description = $3,
			organizer = $4,
			venue = $5,
			starts_at = $6,
			capacity = $7,
			price_per_ticket = $8,
			is_active = $9,
			version = version + 1,
			updated_at = $10
		WHERE id = $1 AND committed_count <= $7
	`

	result, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Name,
		event.Description,
		event.Organizer,
		event.Venue,
		event.StartsAt,
		event.Capacity,
		event.PricePerTicket,
		event.IsActive,
		time.Now(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update event: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the event is gone or the shrink lost to a concurrent
		// reservation; distinguish so admins get an actionable error
		if _, getErr := r.GetByID(ctx, event.ID); getErr == nil {
			span.SetStatus(codes.Error, "capacity below committed count")
			return domain.ErrInvalidCapacity
		}
		span.SetStatus(codes.Error, "not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetActive toggles whether an event accepts bookings
func (r *PostgresEventRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.set_active")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", id),
		attribute.Bool("active", active),
	)

	query := `
		UPDATE events SET
			is_active = $2,
			version = version + 1,
			updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, active, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set event active: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Availability reads the authoritative remaining ticket count
func (r *PostgresEventRepository) Availability(ctx context.Context, id string) (*domain.Availability, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.availability")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	query := `
		SELECT capacity, committed_count
		FROM events
		WHERE id = $1
	`

	var capacity, committed int
	err := r.pool.QueryRow(ctx, query, id).Scan(&capacity, &committed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read availability: %w", err)
	}

	available := capacity - committed
	if available < 0 {
		available = 0
	}

	span.SetAttributes(attribute.Int("available", available))
	span.SetStatus(codes.Ok, "")
	return &domain.Availability{
		EventID:   id,
		Available: available,
		Capacity:  capacity,
		FetchedAt: time.Now(),
	}, nil
}

const analyticsQuery = `
	SELECT
		e.id, e.name, e.capacity, e.committed_count,
		COUNT(b.id) AS total_bookings,
		COUNT(b.id) FILTER (WHERE b.status = 'confirmed') AS confirmed,
		COUNT(b.id) FILTER (WHERE b.status = 'cancelled') AS cancelled,
		COUNT(b.id) FILTER (WHERE b.status = 'failed') AS failed,
		COALESCE(SUM(b.total_price) FILTER (WHERE b.status = 'confirmed'), 0) AS revenue
	FROM events e
	LEFT JOIN bookings b ON b.event_id = e.id
`

// GetAnalytics aggregates booking activity for one event
func (r *PostgresEventRepository) GetAnalytics(ctx context.Context, id string) (*domain.EventAnalytics, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_analytics")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	query := analyticsQuery + `
		WHERE e.id = $1
		GROUP BY e.id
	`

	analytics, err := scanAnalyticsRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return analytics, nil
}

// ListAnalytics aggregates booking activity across all events
func (r *PostgresEventRepository) ListAnalytics(ctx context.Context) ([]*domain.EventAnalytics, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list_analytics")
	defer span.End()

	query := analyticsQuery + `
		GROUP BY e.id
		ORDER BY e.starts_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list analytics: %w", err)
	}
	defer rows.Close()

	var results []*domain.EventAnalytics
	for rows.Next() {
		analytics, err := scanAnalyticsRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan analytics: %w", err)
		}
		results = append(results, analytics)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating analytics: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// scanEventRow scans a single event row
func scanEventRow(row pgx.Row) (*domain.Event, error) {
	event := &domain.Event{}
	err := row.Scan(
		&event.ID,
		&event.Name,
		&event.Description,
		&event.Organizer,
		&event.Venue,
		&event.StartsAt,
		&event.Capacity,
		&event.CommittedCount,
		&event.PricePerTicket,
		&event.IsActive,
		&event.Version,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// scanAnalyticsRow scans a single analytics row
func scanAnalyticsRow(row pgx.Row) (*domain.EventAnalytics, error) {
	a := &domain.EventAnalytics{}
	err := row.Scan(
		&a.EventID,
		&a.EventName,
		&a.Capacity,
		&a.TicketsCommitted,
		&a.TotalBookings,
		&a.Confirmed,
		&a.Cancelled,
		&a.Failed,
		&a.Revenue,
	)
	if err != nil {
		return nil, err
	}

	a.TicketsAvailable = a.Capacity - a.TicketsCommitted
	if a.TicketsAvailable < 0 {
		a.TicketsAvailable = 0
	}
	if a.Capacity > 0 {
		a.UtilizationPct = float64(a.TicketsCommitted) / float64(a.Capacity) * 100
	}
	return a, nil
}

// Ensure PostgresEventRepository implements EventRepository
var _ EventRepository = (*PostgresEventRepository)(nil)
