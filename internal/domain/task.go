package domain

import (
	"encoding/json"
	"time"
)

// TaskKind identifies the work a background task performs
type TaskKind string

const (
	TaskKindConfirmBooking   TaskKind = "confirm_booking"
	TaskKindSendEmail        TaskKind = "send_email"
	TaskKindNotifyEventUsers TaskKind = "notify_event_users"
)

// IsValid checks if the kind is a valid TaskKind
func (k TaskKind) IsValid() bool {
	switch k {
	case TaskKindConfirmBooking, TaskKindSendEmail, TaskKindNotifyEventUsers:
		return true
	}
	return false
}

// TaskStatus represents the status of a background task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// String returns the string representation of TaskStatus
func (s TaskStatus) String() string {
	return string(s)
}

// Task represents a unit of asynchronous work persisted in the same
// database as the state it operates on. A task row inserted in the same
// transaction as a booking cannot be enqueued without the booking
// existing, and vice versa.
type Task struct {
	ID          string     `json:"id"`
	BookingID   string     `json:"booking_id,omitempty"`
	Kind        TaskKind   `json:"kind"`
	Status      TaskStatus `json:"status"`
	Payload     []byte     `json:"payload,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	RunAt       time.Time  `json:"run_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a pending task due immediately
func NewTask(kind TaskKind, bookingID string, payload interface{}, maxAttempts int) (*Task, error) {
	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	return &Task{
		BookingID:   bookingID,
		Kind:        kind,
		Status:      TaskStatusPending,
		Payload:     payloadBytes,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
	}, nil
}

// GetPayload unmarshals the payload into the given value
func (t *Task) GetPayload(v interface{}) error {
	return json.Unmarshal(t.Payload, v)
}

// CanRetry checks if the task has attempts remaining
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// NotifyPayload is the payload of a notify_event_users task
type NotifyPayload struct {
	EventID string `json:"event_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailPayload is the payload of a send_email task
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
