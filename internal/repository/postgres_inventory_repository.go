package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/pkg/telemetry"
)

// pgLockNotAvailable is the SQLSTATE raised when lock_timeout expires
const pgLockNotAvailable = "55P03"

// PostgresInventoryRepository implements InventoryRepository using
// PostgreSQL row locks. Every capacity check and every inventory move
// happens while holding the event row lock.
type PostgresInventoryRepository struct {
	pool        *pgxpool.Pool
	taskRepo    *PostgresTaskRepository
	lockTimeout time.Duration
}

// NewPostgresInventoryRepository creates a new PostgresInventoryRepository
func NewPostgresInventoryRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresInventoryRepository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &PostgresInventoryRepository{
		pool:        pool,
		taskRepo:    NewPostgresTaskRepository(pool),
		lockTimeout: lockTimeout,
	}
}

// Reserve checks capacity and creates the booking and its confirmation
// task in a single transaction
func (r *PostgresInventoryRepository) Reserve(ctx context.Context, params *ReserveParams) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", params.EventID),
		attribute.String("user_id", params.UserID),
		attribute.Int("quantity", params.Quantity),
	)

	if params.Quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.setLockTimeout(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	event, err := lockEvent(ctx, tx, params.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventBusy) {
			span.SetStatus(codes.Error, "event row lock timeout")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	if err := event.CanBook(time.Now()); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if available := event.Available(); available < params.Quantity {
		span.SetAttributes(attribute.Int("available", available))
		span.SetStatus(codes.Error, "insufficient capacity")
		return nil, domain.NewInsufficientCapacityError(params.EventID, params.Quantity, available)
	}

	commitQuery := `
		UPDATE events SET
			committed_count = committed_count + $2,
			version = version + 1,
			updated_at = $3
		WHERE id = $1
	`
	now := time.Now()
	if _, err := tx.Exec(ctx, commitQuery, params.EventID, params.Quantity, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit inventory: %w", err)
	}

	booking := &domain.Booking{
		ID:         uuid.New().String(),
		UserID:     params.UserID,
		UserEmail:  params.UserEmail,
		EventID:    params.EventID,
		Quantity:   params.Quantity,
		TotalPrice: float64(params.Quantity) * event.PricePerTicket,
		Status:     domain.BookingStatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	task, err := domain.NewTask(domain.TaskKindConfirmBooking, booking.ID, nil, params.TaskMaxAttempts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to build confirmation task: %w", err)
	}
	task.ID = uuid.New().String()
	booking.TaskID = task.ID

	insertBooking := `
		INSERT INTO bookings (
			id, user_id, user_email, event_id, quantity, total_price,
			status, task_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.Exec(ctx, insertBooking,
		booking.ID,
		booking.UserID,
		booking.UserEmail,
		booking.EventID,
		booking.Quantity,
		booking.TotalPrice,
		booking.Status.String(),
		booking.TaskID,
		booking.CreatedAt,
		booking.UpdatedAt,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	if err := r.taskRepo.CreateTx(ctx, tx, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// Release moves a booking to a terminal status and restores its tickets
// when the booking was holding inventory
func (r *PostgresInventoryRepository) Release(ctx context.Context, bookingID string, from []domain.BookingStatus, to domain.BookingStatus, reason string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.release")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("to_status", to.String()),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.setLockTimeout(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	booking, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			span.SetStatus(codes.Error, "not found")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	current := booking.Status
	if !statusIn(current, from) {
		span.SetStatus(codes.Error, "unexpected status "+current.String())
		if current.IsTerminal() {
			return nil, domain.ErrBookingTerminal
		}
		return nil, domain.ErrInvalidTransition
	}

	// Event row lock first, matching Reserve's lock order
	if _, err := lockEvent(ctx, tx, booking.EventID); err != nil {
		if errors.Is(err, domain.ErrEventBusy) {
			span.SetStatus(codes.Error, "event row lock timeout")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	now := time.Now()
	updateQuery := `
		UPDATE bookings SET
			status = $3,
			failure_reason = $4,
			cancelled_at = $5,
			updated_at = $6
		WHERE id = $1 AND status = $2
	`
	var cancelledAt *time.Time
	if to == domain.BookingStatusCancelled {
		cancelledAt = &now
	}
	result, err := tx.Exec(ctx, updateQuery,
		bookingID, current.String(), to.String(), nullString(reason), cancelledAt, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Lost a race with another transition after the initial read
		span.SetStatus(codes.Error, "concurrent status change")
		return nil, domain.ErrInvalidTransition
	}

	if current.HoldsInventory() && !to.HoldsInventory() {
		restoreQuery := `
			UPDATE events SET
				committed_count = GREATEST(committed_count - $2, 0),
				version = version + 1,
				updated_at = $3
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, restoreQuery, booking.EventID, booking.Quantity, now); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to restore inventory: %w", err)
		}
		span.SetAttributes(attribute.Int("restored", booking.Quantity))
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	booking.Status = to
	booking.FailureReason = reason
	booking.CancelledAt = cancelledAt
	booking.UpdatedAt = now

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// setLockTimeout bounds how long this transaction waits for row locks
func (r *PostgresInventoryRepository) setLockTimeout(ctx context.Context, tx pgx.Tx) error {
	query := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return nil
}

// lockEvent reads the event row under FOR UPDATE. A lock timeout maps to
// ErrEventBusy so callers can surface a retryable error.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID string) (*domain.Event, error) {
	query := `
		SELECT
			id, name, description, organizer, venue, starts_at,
			capacity, committed_count, price_per_ticket, is_active,
			version, created_at, updated_at
		FROM events
		WHERE id = $1
		FOR UPDATE
	`

	event := &domain.Event{}
	err := tx.QueryRow(ctx, query, eventID).Scan(
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, domain.ErrEventBusy
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return event, nil
}

// getBookingTx reads a booking inside a transaction without locking it
func getBookingTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Booking, error) {
	query := `
		SELECT
			id, user_id, user_email, event_id, quantity, total_price,
			status, failure_reason, task_id,
			created_at, updated_at, confirmed_at, cancelled_at
		FROM bookings
		WHERE id = $1
	`
	booking, err := scanBookingRow(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func statusIn(status domain.BookingStatus, set []domain.BookingStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// Ensure PostgresInventoryRepository implements InventoryRepository
var _ InventoryRepository = (*PostgresInventoryRepository)(nil)
