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

// PostgresTaskRepository implements TaskRepository using PostgreSQL with pgxpool
type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTaskRepository creates a new PostgresTaskRepository
func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

const taskColumns = `
	id, booking_id, kind, status, payload, attempts, max_attempts,
	last_error, run_at, created_at, updated_at
`

// Create inserts a pending task
func (r *PostgresTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.create")
	defer span.End()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	span.SetAttributes(
		attribute.String("task_id", task.ID),
		attribute.String("kind", string(task.Kind)),
	)

	if err := r.insert(ctx, r.pool, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CreateTx inserts a pending task inside an existing transaction. Used to
// enqueue work atomically with the state change it follows up on.
func (r *PostgresTaskRepository) CreateTx(ctx context.Context, tx pgx.Tx, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	return r.insert(ctx, tx, task)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *PostgresTaskRepository) insert(ctx context.Context, db execer, task *domain.Task) error {
	query := `
		INSERT INTO tasks (
			id, booking_id, kind, status, payload, attempts, max_attempts,
			last_error, run_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.RunAt.IsZero() {
		task.RunAt = now
	}
	task.UpdatedAt = now

	_, err := db.Exec(ctx, query,
		task.ID,
		nullString(task.BookingID),
		string(task.Kind),
		task.Status.String(),
		task.Payload,
		task.Attempts,
		task.MaxAttempts,
		nullString(task.LastError),
		task.RunAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by its ID
func (r *PostgresTaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("task_id", id))

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTaskRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrTaskNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return task, nil
}

// ClaimDue claims up to limit due pending tasks. FOR UPDATE SKIP LOCKED
// lets concurrent workers claim disjoint sets without blocking each other.
func (r *PostgresTaskRepository) ClaimDue(ctx context.Context, limit int) ([]*domain.Task, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.claim_due")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		UPDATE tasks SET
			status = 'running',
			attempts = attempts + 1,
			updated_at = $2
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'pending' AND run_at <= $2
			ORDER BY run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns + `
	`

	rows, err := r.pool.Query(ctx, query, limit, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	span.SetAttributes(attribute.Int("claimed", len(tasks)))
	span.SetStatus(codes.Ok, "")
	return tasks, nil
}

// Reschedule returns a running task to pending with a future run time
func (r *PostgresTaskRepository) Reschedule(ctx context.Context, id string, runAt time.Time, lastError string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.reschedule")
	defer span.End()

	span.SetAttributes(
		attribute.String("task_id", id),
		attribute.String("run_at", runAt.Format(time.RFC3339)),
	)

	query := `
		UPDATE tasks SET
			status = 'pending',
			run_at = $2,
			last_error = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.pool.Exec(ctx, query, id, runAt, nullString(lastError), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not running")
		return domain.ErrTaskNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkSucceeded marks a running task as succeeded
func (r *PostgresTaskRepository) MarkSucceeded(ctx context.Context, id string) error {
	return r.finish(ctx, id, domain.TaskStatusSucceeded, "")
}

// MarkFailed marks a running task as permanently failed
func (r *PostgresTaskRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	return r.finish(ctx, id, domain.TaskStatusFailed, lastError)
}

func (r *PostgresTaskRepository) finish(ctx context.Context, id string, status domain.TaskStatus, lastError string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.finish")
	defer span.End()

	span.SetAttributes(
		attribute.String("task_id", id),
		attribute.String("status", status.String()),
	)

	query := `
		UPDATE tasks SET
			status = $2,
			last_error = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.pool.Exec(ctx, query, id, status.String(), nullString(lastError), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to finish task: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not running")
		return domain.ErrTaskNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// scanTaskRow scans a single task row
func scanTaskRow(row pgx.Row) (*domain.Task, error) {
	task := &domain.Task{}
	var (
		bookingID *string
		kind      string
		status    string
		lastError *string
	)

	err := row.Scan(
		&task.ID,
		&bookingID,
		&kind,
		&status,
		&task.Payload,
		&task.Attempts,
		&task.MaxAttempts,
		&lastError,
		&task.RunAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Kind = domain.TaskKind(kind)
	task.Status = domain.TaskStatus(status)
	if bookingID != nil {
		task.BookingID = *bookingID
	}
	if lastError != nil {
		task.LastError = *lastError
	}

	return task, nil
}

// Ensure PostgresTaskRepository implements TaskRepository
var _ TaskRepository = (*PostgresTaskRepository)(nil)
