package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/internal/repository"
	"github.com/evently/evently/internal/service"
	"github.com/evently/evently/pkg/logger"
	"github.com/evently/evently/pkg/retry"
)

// ConfirmationWorkerConfig contains configuration for the confirmation worker
type ConfirmationWorkerConfig struct {
	// PollInterval is the interval between claiming batches of due tasks
	PollInterval time.Duration
	// BatchSize is the maximum number of tasks claimed per poll
	BatchSize int
	// Backoff drives the delay before a failed task runs again
	Backoff *retry.Config
}

// DefaultConfirmationWorkerConfig returns default configuration
func DefaultConfirmationWorkerConfig() *ConfirmationWorkerConfig {
	return &ConfirmationWorkerConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    50,
		Backoff:      retry.DefaultConfig(),
	}
}

// ConfirmationWorker drains the task queue: it finalizes committed
// bookings, sends emails and fans out event notifications. Tasks that
// keep failing are retried with backoff until their attempts run out;
// a confirmation task that runs out moves its booking to failed and
// restores the tickets.
type ConfirmationWorker struct {
	taskRepo      repository.TaskRepository
	bookingRepo   repository.BookingRepository
	inventoryRepo repository.InventoryRepository
	cache         repository.AvailabilityCache
	notifier      service.Notifier
	publisher     service.EventPublisher
	config        *ConfirmationWorkerConfig
	log           *logger.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool

	// Stats
	totalSucceeded   int64
	totalRescheduled int64
	totalFailed      int64
	lastPollTime     time.Time
}

// NewConfirmationWorker creates a new confirmation worker
func NewConfirmationWorker(
	taskRepo repository.TaskRepository,
	bookingRepo repository.BookingRepository,
	inventoryRepo repository.InventoryRepository,
	cache repository.AvailabilityCache,
	notifier service.Notifier,
	publisher service.EventPublisher,
	config *ConfirmationWorkerConfig,
) *ConfirmationWorker {
	if config == nil {
		config = DefaultConfirmationWorkerConfig()
	}
	if config.Backoff == nil {
		config.Backoff = retry.DefaultConfig()
	}
	if publisher == nil {
		publisher = service.NewNoOpEventPublisher()
	}

	return &ConfirmationWorker{
		taskRepo:      taskRepo,
		bookingRepo:   bookingRepo,
		inventoryRepo: inventoryRepo,
		cache:         cache,
		notifier:      notifier,
		publisher:     publisher,
		config:        config,
		log:           logger.Get(),
		stopCh:        make(chan struct{}),
	}
}

// Start starts the confirmation worker
func (w *ConfirmationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("confirmation worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting confirmation worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	w.wg.Add(1)
	go w.pollLoop(ctx)

	return nil
}

// Stop stops the confirmation worker
func (w *ConfirmationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping confirmation worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("confirmation worker stopped")
}

// pollLoop claims and processes due tasks until stopped
func (w *ConfirmationWorker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.processBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// processBatch claims one batch of due tasks and runs them
func (w *ConfirmationWorker) processBatch(ctx context.Context) {
	w.mu.Lock()
	w.lastPollTime = time.Now()
	w.mu.Unlock()

	tasks, err := w.taskRepo.ClaimDue(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to claim tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		w.runTask(ctx, task)
	}
}

// runTask executes one claimed task and settles its outcome
func (w *ConfirmationWorker) runTask(ctx context.Context, task *domain.Task) {
	err := w.execute(ctx, task)
	if err == nil {
		if err := w.taskRepo.MarkSucceeded(ctx, task.ID); err != nil {
			w.log.Error("failed to mark task succeeded",
				zap.String("task_id", task.ID), zap.Error(err))
			return
		}
		w.mu.Lock()
		w.totalSucceeded++
		w.mu.Unlock()
		return
	}

	if retry.IsPermanent(err) || !task.CanRetry() {
		w.settlePermanentFailure(ctx, task, err)
		return
	}

	delay := w.config.Backoff.Interval(task.Attempts)
	if rescheduleErr := w.taskRepo.Reschedule(ctx, task.ID, time.Now().Add(delay), err.Error()); rescheduleErr != nil {
		w.log.Error("failed to reschedule task",
			zap.String("task_id", task.ID), zap.Error(rescheduleErr))
		return
	}

	w.mu.Lock()
	w.totalRescheduled++
	w.mu.Unlock()

	w.log.Warn("task rescheduled",
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempt", task.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err))
}

// settlePermanentFailure marks the task failed and, for confirmation
// tasks, fails the booking and restores its tickets
func (w *ConfirmationWorker) settlePermanentFailure(ctx context.Context, task *domain.Task, cause error) {
	if err := w.taskRepo.MarkFailed(ctx, task.ID, cause.Error()); err != nil {
		w.log.Error("failed to mark task failed",
			zap.String("task_id", task.ID), zap.Error(err))
	}

	w.mu.Lock()
	w.totalFailed++
	w.mu.Unlock()

	w.log.Error("task permanently failed",
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempts", task.Attempts),
		zap.Error(cause))

	if task.Kind != domain.TaskKindConfirmBooking || task.BookingID == "" {
		return
	}

	reason := fmt.Sprintf("confirmation failed after %d attempts: %v", task.Attempts, cause)
	booking, err := w.inventoryRepo.Release(ctx, task.BookingID,
		[]domain.BookingStatus{domain.BookingStatusProcessing},
		domain.BookingStatusFailed, reason)
	if err != nil {
		// Terminal means the booking already settled elsewhere; the
		// status guard prevented a second inventory restore
		if errors.Is(err, domain.ErrBookingTerminal) {
			return
		}
		w.log.Error("failed to fail booking after confirmation failure",
			zap.String("booking_id", task.BookingID), zap.Error(err))
		return
	}

	w.invalidateAvailability(ctx, booking.EventID)

	if booking.UserEmail != "" {
		w.enqueueEmail(ctx, booking, "Your booking could not be completed",
			fmt.Sprintf("Your booking %s for %d ticket(s) could not be completed. "+
				"You have not been charged and the tickets have been released.",
				booking.ID, booking.Quantity))
	}

	if err := w.publisher.PublishBookingFailed(ctx, booking); err != nil {
		w.log.Warn("failed to publish booking failed event",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
}

// execute dispatches a task by kind
func (w *ConfirmationWorker) execute(ctx context.Context, task *domain.Task) error {
	switch task.Kind {
	case domain.TaskKindConfirmBooking:
		return w.confirmBooking(ctx, task)
	case domain.TaskKindSendEmail:
		return w.sendEmail(ctx, task)
	case domain.TaskKindNotifyEventUsers:
		return w.notifyEventUsers(ctx, task)
	default:
		return retry.Permanent(fmt.Errorf("unknown task kind %q", task.Kind))
	}
}

// confirmBooking finalizes a committed booking, processing -> confirmed.
// The transition is a status-guarded update, so a redelivered task finds
// the work already done and exits cleanly instead of repeating it.
func (w *ConfirmationWorker) confirmBooking(ctx context.Context, task *domain.Task) error {
	booking, err := w.bookingRepo.GetByID(ctx, task.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return retry.Permanent(err)
		}
		return err
	}

	switch booking.Status {
	case domain.BookingStatusProcessing:
		// Claimed or redelivered mid-flight; finalize below
	case domain.BookingStatusConfirmed:
		return nil
	case domain.BookingStatusCancelled, domain.BookingStatusFailed:
		// Settled elsewhere before confirmation ran; nothing to confirm
		return nil
	default:
		return retry.Permanent(fmt.Errorf("booking %s in unexpected status %q", booking.ID, booking.Status))
	}

	if err := w.bookingRepo.UpdateStatusIf(ctx, booking.ID,
		domain.BookingStatusProcessing, domain.BookingStatusConfirmed); err != nil {
		if errors.Is(err, domain.ErrBookingTerminal) {
			// Lost a race with a user cancellation
			return nil
		}
		return err
	}

	now := time.Now()
	booking.Status = domain.BookingStatusConfirmed
	booking.ConfirmedAt = &now

	w.log.Info("booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("event_id", booking.EventID),
		zap.Int("quantity", booking.Quantity))

	if booking.UserEmail != "" {
		w.enqueueEmail(ctx, booking, "Your booking is confirmed",
			fmt.Sprintf("Your booking %s for %d ticket(s) is confirmed. Total: %.2f",
				booking.ID, booking.Quantity, booking.TotalPrice))
	}

	if err := w.publisher.PublishBookingConfirmed(ctx, booking); err != nil {
		w.log.Warn("failed to publish booking confirmed event",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}

	return nil
}

// enqueueEmail queues a booking email as its own task so email outages
// never block or fail the booking transition that triggered it
func (w *ConfirmationWorker) enqueueEmail(ctx context.Context, booking *domain.Booking, subject, body string) {
	emailTask, err := domain.NewTask(domain.TaskKindSendEmail, booking.ID, &domain.EmailPayload{
		To:      booking.UserEmail,
		Subject: subject,
		Body:    body,
	}, w.config.Backoff.MaxRetries)
	if err != nil {
		w.log.Warn("failed to build email task",
			zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}

	if err := w.taskRepo.Create(ctx, emailTask); err != nil {
		w.log.Warn("failed to enqueue email task",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
}

// sendEmail delivers a queued email
func (w *ConfirmationWorker) sendEmail(ctx context.Context, task *domain.Task) error {
	var payload domain.EmailPayload
	if err := task.GetPayload(&payload); err != nil {
		return retry.Permanent(fmt.Errorf("bad email payload: %w", err))
	}
	if payload.To == "" {
		return retry.Permanent(fmt.Errorf("email task %s has no recipient", task.ID))
	}
	return w.notifier.SendEmail(ctx, payload.To, payload.Subject, payload.Body)
}

// notifyEventUsers emails everyone holding a booking for an event.
// Delivery is at-least-once: a partial failure reschedules the whole
// task and recipients may see the message twice.
func (w *ConfirmationWorker) notifyEventUsers(ctx context.Context, task *domain.Task) error {
	var payload domain.NotifyPayload
	if err := task.GetPayload(&payload); err != nil {
		return retry.Permanent(fmt.Errorf("bad notify payload: %w", err))
	}

	emails, err := w.bookingRepo.ListEmailsByEvent(ctx, payload.EventID)
	if err != nil {
		return err
	}

	var failed int
	for _, to := range emails {
		if err := w.notifier.SendEmail(ctx, to, payload.Subject, payload.Body); err != nil {
			failed++
			w.log.Warn("failed to send event notification",
				zap.String("event_id", payload.EventID), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to notify %d of %d recipients", failed, len(emails))
	}

	w.log.Info("event notification sent",
		zap.String("event_id", payload.EventID),
		zap.Int("recipients", len(emails)))
	return nil
}

func (w *ConfirmationWorker) invalidateAvailability(ctx context.Context, eventID string) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Invalidate(ctx, eventID); err != nil {
		w.log.Warn("failed to invalidate availability cache",
			zap.String("event_id", eventID), zap.Error(err))
	}
}

// Stats returns worker statistics
func (w *ConfirmationWorker) Stats() *ConfirmationWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ConfirmationWorkerStats{
		IsRunning:        w.running,
		TotalSucceeded:   w.totalSucceeded,
		TotalRescheduled: w.totalRescheduled,
		TotalFailed:      w.totalFailed,
		LastPollTime:     w.lastPollTime,
	}
}

// ConfirmationWorkerStats contains worker statistics
type ConfirmationWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalSucceeded   int64     `json:"total_succeeded"`
	TotalRescheduled int64     `json:"total_rescheduled"`
	TotalFailed      int64     `json:"total_failed"`
	LastPollTime     time.Time `json:"last_poll_time"`
}
