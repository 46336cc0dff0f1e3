package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{"pending to processing", BookingStatusPending, BookingStatusProcessing, true},
		{"pending to failed", BookingStatusPending, BookingStatusFailed, true},
		{"pending to cancelled skips commit", BookingStatusPending, BookingStatusCancelled, false},
		{"pending to confirmed skips processing", BookingStatusPending, BookingStatusConfirmed, false},
		{"processing to confirmed", BookingStatusProcessing, BookingStatusConfirmed, true},
		{"processing to failed", BookingStatusProcessing, BookingStatusFailed, true},
		{"processing to cancelled", BookingStatusProcessing, BookingStatusCancelled, true},
		{"confirmed to cancelled", BookingStatusConfirmed, BookingStatusCancelled, true},
		{"confirmed to failed", BookingStatusConfirmed, BookingStatusFailed, false},
		{"failed is terminal", BookingStatusFailed, BookingStatusPending, false},
		{"cancelled is terminal", BookingStatusCancelled, BookingStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBookingCancel(t *testing.T) {
	tests := []struct {
		name    string
		status  BookingStatus
		wantErr error
	}{
		{"cancel processing", BookingStatusProcessing, nil},
		{"cancel confirmed", BookingStatusConfirmed, nil},
		{"cancel pending", BookingStatusPending, ErrInvalidTransition},
		{"cancel cancelled", BookingStatusCancelled, ErrBookingTerminal},
		{"cancel failed", BookingStatusFailed, ErrBookingTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Booking{ID: "booking-1", UserID: "user-1", EventID: "event-1", Quantity: 1, Status: tt.status}

			err := b.Cancel()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Cancel() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel() unexpected error: %v", err)
			}
			if b.Status != BookingStatusCancelled {
				t.Errorf("Status = %s, want cancelled", b.Status)
			}
			if b.CancelledAt == nil {
				t.Error("CancelledAt not set")
			}
		})
	}
}

func TestBookingConfirm(t *testing.T) {
	b := &Booking{ID: "booking-1", Status: BookingStatusProcessing}
	if err := b.Confirm(); err != nil {
		t.Fatalf("Confirm() unexpected error: %v", err)
	}
	if b.Status != BookingStatusConfirmed || b.ConfirmedAt == nil {
		t.Errorf("Confirm() did not set status and timestamp: %+v", b)
	}

	// Confirming again is a no-transition error, not a silent success
	if err := b.Confirm(); err == nil {
		t.Error("second Confirm() should fail")
	}
}

func TestBookingFail(t *testing.T) {
	b := &Booking{ID: "booking-1", Status: BookingStatusProcessing}
	if err := b.Fail("capacity exhausted"); err != nil {
		t.Fatalf("Fail() unexpected error: %v", err)
	}
	if b.Status != BookingStatusFailed {
		t.Errorf("Status = %s, want failed", b.Status)
	}
	if b.FailureReason != "capacity exhausted" {
		t.Errorf("FailureReason = %q", b.FailureReason)
	}

	if err := b.Fail("again"); !errors.Is(err, ErrBookingTerminal) {
		t.Errorf("Fail() on terminal booking error = %v, want ErrBookingTerminal", err)
	}
}

func TestBookingValidate(t *testing.T) {
	valid := func() *Booking {
		return &Booking{
			ID:       "booking-1",
			UserID:   "user-1",
			EventID:  "event-1",
			Quantity: 2,
			Status:   BookingStatusPending,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Booking)
		wantErr error
	}{
		{"valid booking", func(b *Booking) {}, nil},
		{"missing id", func(b *Booking) { b.ID = "" }, ErrInvalidBookingID},
		{"missing user", func(b *Booking) { b.UserID = "" }, ErrInvalidUserID},
		{"missing event", func(b *Booking) { b.EventID = "" }, ErrInvalidEventID},
		{"zero quantity", func(b *Booking) { b.Quantity = 0 }, ErrInvalidQuantity},
		{"negative quantity", func(b *Booking) { b.Quantity = -1 }, ErrInvalidQuantity},
		{"negative price", func(b *Booking) { b.TotalPrice = -1 }, ErrInvalidPrice},
		{"bad status", func(b *Booking) { b.Status = "unknown" }, ErrInvalidBookingStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)

			err := b.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusHoldsInventory(t *testing.T) {
	holding := []BookingStatus{BookingStatusProcessing, BookingStatusConfirmed}
	released := []BookingStatus{BookingStatusPending, BookingStatusFailed, BookingStatusCancelled}

	for _, s := range holding {
		if !s.HoldsInventory() {
			t.Errorf("%s should hold inventory", s)
		}
	}
	for _, s := range released {
		if s.HoldsInventory() {
			t.Errorf("%s should not hold inventory", s)
		}
	}
}

func TestEventCanBook(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{
			name:    "active future event",
			event:   Event{IsActive: true, StartsAt: now.Add(time.Hour)},
			wantErr: nil,
		},
		{
			name:    "inactive event",
			event:   Event{IsActive: false, StartsAt: now.Add(time.Hour)},
			wantErr: ErrEventInactive,
		},
		{
			name:    "started event",
			event:   Event{IsActive: true, StartsAt: now.Add(-time.Minute)},
			wantErr: ErrEventStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.CanBook(now); !errors.Is(err, tt.wantErr) {
				t.Errorf("CanBook() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventAvailable(t *testing.T) {
	e := Event{Capacity: 100, CommittedCount: 30}
	if got := e.Available(); got != 70 {
		t.Errorf("Available() = %d, want 70", got)
	}

	// Overcommit must never surface as negative availability
	e.CommittedCount = 120
	if got := e.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
}

func TestInsufficientCapacityError(t *testing.T) {
	err := NewInsufficientCapacityError("event-1", 5, 2)
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Error("should unwrap to ErrInsufficientCapacity")
	}
	if !IsConflictError(err) {
		t.Error("should classify as conflict")
	}

	var capErr *InsufficientCapacityError
	if !errors.As(err, &capErr) {
		t.Fatal("should match *InsufficientCapacityError")
	}
	if capErr.Available != 2 || capErr.Requested != 5 {
		t.Errorf("unexpected fields: %+v", capErr)
	}
}
