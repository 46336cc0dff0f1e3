package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/pkg/telemetry"
)

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

const bookingColumns = `
	id, user_id, user_email, event_id, quantity, total_price,
	status, failure_reason, task_id,
	created_at, updated_at, confirmed_at, cancelled_at
`

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByUserID retrieves a page of a user's bookings, newest first
func (r *PostgresBookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_user_id")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var total int
	countQuery := `SELECT COUNT(*) FROM bookings WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to get bookings by user ID: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, total, nil
}

// UpdateStatusIf moves a booking between statuses with a guard on the
// expected current status
func (r *PostgresBookingRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.BookingStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update_status_if")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	)

	query := `
		UPDATE bookings SET
			status = $3,
			confirmed_at = CASE WHEN $3 = 'confirmed' THEN $4 ELSE confirmed_at END,
			updated_at = $4
		WHERE id = $1 AND status = $2
	`

	result, err := r.pool.Exec(ctx, query, id, from.String(), to.String(), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.classifyGuardMiss(ctx, span, id)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkFailed moves a booking to failed with a reason, guarded on the
// expected current status
func (r *PostgresBookingRepository) MarkFailed(ctx context.Context, id string, from domain.BookingStatus, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.mark_failed")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("from", from.String()),
	)

	query := `
		UPDATE bookings SET
			status = $3,
			failure_reason = $4,
			updated_at = $5
		WHERE id = $1 AND status = $2
	`

	result, err := r.pool.Exec(ctx, query,
		id, from.String(), domain.BookingStatusFailed.String(), nullString(reason), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark booking failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.classifyGuardMiss(ctx, span, id)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListEmailsByEvent lists distinct emails of users holding non-terminal
// bookings for an event
func (r *PostgresBookingRepository) ListEmailsByEvent(ctx context.Context, eventID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_emails_by_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `
		SELECT DISTINCT user_email
		FROM bookings
		WHERE event_id = $1
			AND user_email <> ''
			AND status IN ('processing', 'confirmed')
	`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(emails)))
	span.SetStatus(codes.Ok, "")
	return emails, nil
}

// classifyGuardMiss inspects why a status-guarded update matched no rows
func (r *PostgresBookingRepository) classifyGuardMiss(ctx context.Context, span trace.Span, id string) error {
	var status string
	err := r.pool.QueryRow(ctx, "SELECT status FROM bookings WHERE id = $1", id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to check booking status: %w", err)
	}
	span.SetStatus(codes.Error, "unexpected status "+status)
	if domain.BookingStatus(status).IsTerminal() {
		return domain.ErrBookingTerminal
	}
	return domain.ErrInvalidTransition
}

// scanBookingRow scans a single booking row
func scanBookingRow(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status        string
		userEmail     *string
		failureReason *string
		taskID        *string
		confirmedAt   *time.Time
		cancelledAt   *time.Time
	)

	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&userEmail,
		&booking.EventID,
		&booking.Quantity,
		&booking.TotalPrice,
		&status,
		&failureReason,
		&taskID,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&confirmedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	if userEmail != nil {
		booking.UserEmail = *userEmail
	}
	if failureReason != nil {
		booking.FailureReason = *failureReason
	}
	if taskID != nil {
		booking.TaskID = *taskID
	}
	booking.ConfirmedAt = confirmedAt
	booking.CancelledAt = cancelledAt

	return booking, nil
}

// nullString converts an empty string to a nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresBookingRepository implements BookingRepository
var _ BookingRepository = (*PostgresBookingRepository)(nil)
