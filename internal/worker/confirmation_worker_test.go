package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/internal/repository"
	"github.com/evently/evently/pkg/retry"
)

// MockTaskRepository is a mock implementation of TaskRepository
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskRepository) ClaimDue(ctx context.Context, limit int) ([]*domain.Task, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *MockTaskRepository) Reschedule(ctx context.Context, id string, runAt time.Time, lastError string) error {
	args := m.Called(ctx, id, runAt, lastError)
	return args.Error(0)
}

func (m *MockTaskRepository) MarkSucceeded(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

var _ repository.TaskRepository = (*MockTaskRepository)(nil)

// MockBookingRepository is a mock implementation of BookingRepository
type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Booking), args.Int(1), args.Error(2)
}

func (m *MockBookingRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.BookingStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockBookingRepository) MarkFailed(ctx context.Context, id string, from domain.BookingStatus, reason string) error {
	args := m.Called(ctx, id, from, reason)
	return args.Error(0)
}

func (m *MockBookingRepository) ListEmailsByEvent(ctx context.Context, eventID string) ([]string, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

var _ repository.BookingRepository = (*MockBookingRepository)(nil)

// MockInventoryRepository is a mock implementation of InventoryRepository
type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) Reserve(ctx context.Context, params *repository.ReserveParams) (*domain.Booking, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockInventoryRepository) Release(ctx context.Context, bookingID string, from []domain.BookingStatus, to domain.BookingStatus, reason string) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID, from, to, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

var _ repository.InventoryRepository = (*MockInventoryRepository)(nil)

// MockAvailabilityCache is a mock implementation of AvailabilityCache
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) Get(ctx context.Context, eventID string) (*domain.Availability, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Availability), args.Error(1)
}

func (m *MockAvailabilityCache) Set(ctx context.Context, availability *domain.Availability, ttl time.Duration) error {
	args := m.Called(ctx, availability, ttl)
	return args.Error(0)
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

var _ repository.AvailabilityCache = (*MockAvailabilityCache)(nil)

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type workerMocks struct {
	taskRepo      *MockTaskRepository
	bookingRepo   *MockBookingRepository
	inventoryRepo *MockInventoryRepository
	cache         *MockAvailabilityCache
	notifier      *MockNotifier
}

func newTestWorker(config *ConfirmationWorkerConfig) (*ConfirmationWorker, *workerMocks) {
	m := &workerMocks{
		taskRepo:      new(MockTaskRepository),
		bookingRepo:   new(MockBookingRepository),
		inventoryRepo: new(MockInventoryRepository),
		cache:         new(MockAvailabilityCache),
		notifier:      new(MockNotifier),
	}
	w := NewConfirmationWorker(m.taskRepo, m.bookingRepo, m.inventoryRepo, m.cache, m.notifier, nil, config)
	return w, m
}

func claimedConfirmTask(bookingID string, attempts, maxAttempts int) *domain.Task {
	return &domain.Task{
		ID:          "task-1",
		BookingID:   bookingID,
		Kind:        domain.TaskKindConfirmBooking,
		Status:      domain.TaskStatusRunning,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		RunAt:       time.Now(),
	}
}

func TestConfirmationWorker_ConfirmBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms a committed booking and queues the email", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 1, 5)
		booking := &domain.Booking{
			ID:        "booking-1",
			UserID:    "user-1",
			UserEmail: "user@example.com",
			EventID:   "event-1",
			Quantity:  2,
			Status:    domain.BookingStatusProcessing,
		}

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(booking, nil)
		m.bookingRepo.On("UpdateStatusIf", ctx, "booking-1",
			domain.BookingStatusProcessing, domain.BookingStatusConfirmed).Return(nil)
		m.taskRepo.On("Create", ctx, mock.MatchedBy(func(t *domain.Task) bool {
			return t.Kind == domain.TaskKindSendEmail && t.BookingID == "booking-1"
		})).Return(nil)
		m.taskRepo.On("MarkSucceeded", ctx, "task-1").Return(nil)

		w.runTask(ctx, task)

		m.bookingRepo.AssertExpectations(t)
		m.taskRepo.AssertExpectations(t)

		stats := w.Stats()
		assert.Equal(t, int64(1), stats.TotalSucceeded)
	})

	t.Run("skips the email when the booking has no address", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 1, 5)
		booking := &domain.Booking{
			ID:      "booking-1",
			EventID: "event-1",
			Status:  domain.BookingStatusProcessing,
		}

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(booking, nil)
		m.bookingRepo.On("UpdateStatusIf", ctx, "booking-1",
			domain.BookingStatusProcessing, domain.BookingStatusConfirmed).Return(nil)
		m.taskRepo.On("MarkSucceeded", ctx, "task-1").Return(nil)

		w.runTask(ctx, task)

		m.bookingRepo.AssertExpectations(t)
		m.taskRepo.AssertExpectations(t)
		m.taskRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("redelivered task for a confirmed booking succeeds without writes", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 3, 5)
		booking := &domain.Booking{
			ID:     "booking-1",
			Status: domain.BookingStatusConfirmed,
		}

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(booking, nil)
		m.taskRepo.On("MarkSucceeded", ctx, "task-1").Return(nil)

		w.runTask(ctx, task)

		m.bookingRepo.AssertExpectations(t)
		m.bookingRepo.AssertNotCalled(t, "UpdateStatusIf",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.taskRepo.AssertExpectations(t)
	})

	t.Run("booking cancelled before confirmation resolves the task", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 1, 5)
		booking := &domain.Booking{
			ID:     "booking-1",
			Status: domain.BookingStatusCancelled,
		}

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(booking, nil)
		m.taskRepo.On("MarkSucceeded", ctx, "task-1").Return(nil)

		w.runTask(ctx, task)

		m.bookingRepo.AssertExpectations(t)
		m.bookingRepo.AssertNotCalled(t, "UpdateStatusIf",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.taskRepo.AssertExpectations(t)
	})

	t.Run("cancellation racing the guard resolves the task", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 1, 5)
		booking := &domain.Booking{
			ID:        "booking-1",
			UserEmail: "user@example.com",
			EventID:   "event-1",
			Status:    domain.BookingStatusProcessing,
		}

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(booking, nil)
		// User cancelled between the read and the guarded update
		m.bookingRepo.On("UpdateStatusIf", ctx, "booking-1",
			domain.BookingStatusProcessing, domain.BookingStatusConfirmed).
			Return(domain.ErrBookingTerminal)
		m.taskRepo.On("MarkSucceeded", ctx, "task-1").Return(nil)

		w.runTask(ctx, task)

		m.bookingRepo.AssertExpectations(t)
		m.taskRepo.AssertExpectations(t)
		m.taskRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("transient error reschedules with backoff", func(t *testing.T) {
		w, m := newTestWorker(&ConfirmationWorkerConfig{
			PollInterval: time.Second,
			BatchSize:    10,
			Backoff: &retry.Config{
				MaxRetries:      5,
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
				Multiplier:      2.0,
			},
		})
		task := claimedConfirmTask("booking-1", 1, 5)

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(nil, assert.AnError)
		m.taskRepo.On("Reschedule", ctx, "task-1",
			mock.AnythingOfType("time.Time"), assert.AnError.Error()).Return(nil)

		w.runTask(ctx, task)

		m.taskRepo.AssertExpectations(t)
		m.taskRepo.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything)

		stats := w.Stats()
		assert.Equal(t, int64(1), stats.TotalRescheduled)
	})

	t.Run("exhausted attempts fail the booking and restore inventory", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 5, 5)
		failed := &domain.Booking{
			ID:        "booking-1",
			UserEmail: "user@example.com",
			EventID:   "event-1",
			Quantity:  2,
			Status:    domain.BookingStatusFailed,
		}

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(nil, assert.AnError)
		m.taskRepo.On("MarkFailed", ctx, "task-1", mock.AnythingOfType("string")).Return(nil)
		m.inventoryRepo.On("Release", ctx, "booking-1",
			[]domain.BookingStatus{domain.BookingStatusProcessing},
			domain.BookingStatusFailed, mock.AnythingOfType("string")).Return(failed, nil)
		m.cache.On("Invalidate", ctx, "event-1").Return(nil)
		m.taskRepo.On("Create", ctx, mock.MatchedBy(func(t *domain.Task) bool {
			return t.Kind == domain.TaskKindSendEmail
		})).Return(nil)

		w.runTask(ctx, task)

		m.taskRepo.AssertExpectations(t)
		m.inventoryRepo.AssertExpectations(t)
		m.cache.AssertExpectations(t)

		stats := w.Stats()
		assert.Equal(t, int64(1), stats.TotalFailed)
	})

	t.Run("missing booking fails the task without retries", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 1, 5)

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(nil, domain.ErrBookingNotFound)
		m.taskRepo.On("MarkFailed", ctx, "task-1", mock.AnythingOfType("string")).Return(nil)
		// Release is still attempted and finds the booking gone too
		m.inventoryRepo.On("Release", ctx, "booking-1", mock.Anything,
			domain.BookingStatusFailed, mock.AnythingOfType("string")).
			Return(nil, domain.ErrBookingNotFound)

		w.runTask(ctx, task)

		m.taskRepo.AssertExpectations(t)
		m.taskRepo.AssertNotCalled(t, "Reschedule",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("booking already settled skips the restore", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task := claimedConfirmTask("booking-1", 5, 5)

		m.bookingRepo.On("GetByID", ctx, "booking-1").Return(nil, assert.AnError)
		m.taskRepo.On("MarkFailed", ctx, "task-1", mock.AnythingOfType("string")).Return(nil)
		m.inventoryRepo.On("Release", ctx, "booking-1", mock.Anything,
			domain.BookingStatusFailed, mock.AnythingOfType("string")).
			Return(nil, domain.ErrBookingTerminal)

		w.runTask(ctx, task)

		m.inventoryRepo.AssertExpectations(t)
		m.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	})
}

func TestConfirmationWorker_SendEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers the email", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task, err := domain.NewTask(domain.TaskKindSendEmail, "booking-1", &domain.EmailPayload{
			To:      "user@example.com",
			Subject: "Your booking is confirmed",
			Body:    "See you there",
		}, 5)
		assert.NoError(t, err)
		task.ID = "task-1"

		m.notifier.On("SendEmail", ctx, "user@example.com",
			"Your booking is confirmed", "See you there").Return(nil)
		m.taskRepo.On("MarkSucceeded", ctx, "task-1").Return(nil)

		w.runTask(ctx, task)

		m.notifier.AssertExpectations(t)
		m.taskRepo.AssertExpectations(t)
	})

	t.Run("missing recipient is a permanent failure", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task, err := domain.NewTask(domain.TaskKindSendEmail, "booking-1", &domain.EmailPayload{
			Subject: "no recipient",
		}, 5)
		assert.NoError(t, err)
		task.ID = "task-1"
		task.Attempts = 1

		m.taskRepo.On("MarkFailed", ctx, "task-1", mock.AnythingOfType("string")).Return(nil)

		w.runTask(ctx, task)

		m.taskRepo.AssertExpectations(t)
		m.notifier.AssertNotCalled(t, "SendEmail",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		// Email tasks never touch inventory
		m.inventoryRepo.AssertNotCalled(t, "Release",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delivery error retries", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task, err := domain.NewTask(domain.TaskKindSendEmail, "booking-1", &domain.EmailPayload{
			To:      "user@example.com",
			Subject: "s",
			Body:    "b",
		}, 5)
		assert.NoError(t, err)
		task.ID = "task-1"
		task.Attempts = 1

		m.notifier.On("SendEmail", ctx, "user@example.com", "s", "b").Return(assert.AnError)
		m.taskRepo.On("Reschedule", ctx, "task-1",
			mock.AnythingOfType("time.Time"), assert.AnError.Error()).Return(nil)

		w.runTask(ctx, task)

		m.taskRepo.AssertExpectations(t)
	})
}

func TestConfirmationWorker_NotifyEventUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out to every booked user", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task, err := domain.NewTask(domain.TaskKindNotifyEventUsers, "", &domain.NotifyPayload{
			EventID: "event-1",
			Subject: "Venue change",
			Body:    "New venue",
		}, 5)
		assert.NoError(t, err)
		task.ID = "task-1"

		emails := []string{"a@example.com", "b@example.com"}
		m.bookingRepo.On("ListEmailsByEvent", ctx, "event-1").Return(emails, nil)
		for _, to := range emails {
			m.notifier.On("SendEmail", ctx, to, "Venue change", "New venue").Return(nil)
		}
		m.taskRepo.On("MarkSucceeded", ctx, "task-1").Return(nil)

		w.runTask(ctx, task)

		m.notifier.AssertExpectations(t)
		m.taskRepo.AssertExpectations(t)
	})

	t.Run("partial delivery failure retries the task", func(t *testing.T) {
		w, m := newTestWorker(nil)
		task, err := domain.NewTask(domain.TaskKindNotifyEventUsers, "", &domain.NotifyPayload{
			EventID: "event-1",
			Subject: "s",
			Body:    "b",
		}, 5)
		assert.NoError(t, err)
		task.ID = "task-1"
		task.Attempts = 1

		m.bookingRepo.On("ListEmailsByEvent", ctx, "event-1").Return(
			[]string{"a@example.com", "b@example.com"}, nil)
		m.notifier.On("SendEmail", ctx, "a@example.com", "s", "b").Return(nil)
		m.notifier.On("SendEmail", ctx, "b@example.com", "s", "b").Return(assert.AnError)
		m.taskRepo.On("Reschedule", ctx, "task-1",
			mock.AnythingOfType("time.Time"), mock.AnythingOfType("string")).Return(nil)

		w.runTask(ctx, task)

		m.taskRepo.AssertExpectations(t)
	})
}

func TestConfirmationWorker_StartStop(t *testing.T) {
	w, m := newTestWorker(&ConfirmationWorkerConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    5,
		Backoff:      retry.DefaultConfig(),
	})

	m.taskRepo.On("ClaimDue", mock.Anything, 5).Return([]*domain.Task{}, nil)

	ctx := context.Background()
	assert.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "second start should fail")

	time.Sleep(30 * time.Millisecond)
	w.Stop()

	stats := w.Stats()
	assert.False(t, stats.IsRunning)
	assert.False(t, stats.LastPollTime.IsZero())

	// Stop again is a no-op
	w.Stop()
}

func TestDefaultConfirmationWorkerConfig(t *testing.T) {
	cfg := DefaultConfirmationWorkerConfig()

	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.NotNil(t, cfg.Backoff)
}
