package repository

import (
	"context"
	"time"

	"github.com/evently/evently/internal/domain"
)

// TaskRepository defines the interface for background task data access
type TaskRepository interface {
	// Create inserts a pending task outside any surrounding transaction
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its ID
	GetByID(ctx context.Context, id string) (*domain.Task, error)

	// ClaimDue atomically claims up to limit due pending tasks, marking
	// them running and bumping their attempt count. Claimed rows are
	// skipped by concurrent workers.
	ClaimDue(ctx context.Context, limit int) ([]*domain.Task, error)

	// Reschedule returns a running task to pending with a future run
	// time, recording the error that caused the retry
	Reschedule(ctx context.Context, id string, runAt time.Time, lastError string) error

	// MarkSucceeded marks a running task as succeeded
	MarkSucceeded(ctx context.Context, id string) error

	// MarkFailed marks a running task as permanently failed
	MarkFailed(ctx context.Context, id string, lastError string) error
}
