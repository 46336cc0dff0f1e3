package repository

import (
	"testing"

	"github.com/evently/evently/internal/domain"
)

// nullString is reserved for nullable columns (failure_reason, last_error,
// tasks.booking_id). NOT NULL columns with a default, like
// bookings.user_email, must receive the raw string: an explicit NULL
// bypasses the column default and aborts the insert's transaction.
func TestNullString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *string
	}{
		{"empty string becomes SQL NULL", "", nil},
		{"whitespace is kept", " ", strPtr(" ")},
		{"value is kept", "user@example.com", strPtr("user@example.com")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nullString(tt.input)
			if tt.want == nil {
				if got != nil {
					t.Errorf("nullString(%q) = %q, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("nullString(%q) = %v, want %q", tt.input, got, *tt.want)
			}
		})
	}
}

func strPtr(s string) *string {
	return &s
}

func TestStatusIn(t *testing.T) {
	committed := []domain.BookingStatus{
		domain.BookingStatusProcessing,
		domain.BookingStatusConfirmed,
	}

	if !statusIn(domain.BookingStatusProcessing, committed) {
		t.Error("processing should match the committed set")
	}
	if statusIn(domain.BookingStatusCancelled, committed) {
		t.Error("cancelled should not match the committed set")
	}
	if statusIn(domain.BookingStatusPending, nil) {
		t.Error("nothing matches an empty set")
	}
}
