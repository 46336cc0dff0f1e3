package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/internal/dto"
	"github.com/evently/evently/pkg/middleware"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc   func(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error)
	GetBookingFunc      func(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)
	GetUserBookingsFunc func(ctx context.Context, userID string, page, pageSize int) ([]*dto.BookingResponse, int, error)
	CancelBookingFunc   func(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, userID, userEmail, req)
	}
	return nil, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, userID)
	}
	return nil, nil
}

func (m *MockBookingService) GetUserBookings(ctx context.Context, userID string, page, pageSize int) ([]*dto.BookingResponse, int, error) {
	if m.GetUserBookingsFunc != nil {
		return m.GetUserBookingsFunc(ctx, userID, page, pageSize)
	}
	return []*dto.BookingResponse{}, 0, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, userID)
	}
	return nil, nil
}

func setupBookingRouter(handler *BookingHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	if userID != "" {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextKeyUserID, userID)
			c.Set(middleware.ContextKeyUserEmail, userID+"@example.com")
			c.Next()
		})
	}

	bookings := router.Group("/bookings")
	{
		bookings.POST("", handler.CreateBooking)
		bookings.GET("", handler.GetUserBookings)
		bookings.GET("/:id", handler.GetBooking)
		bookings.DELETE("/:id", handler.CancelBooking)
	}

	return router
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return body
}

func errorCode(body map[string]any) string {
	errData, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := errData["code"].(string)
	return code
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		request        any
		mockFunc       func(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:    "successful booking",
			userID:  "user-123",
			request: &dto.CreateBookingRequest{EventID: "event-123", Quantity: 2},
			mockFunc: func(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
				return &dto.BookingResponse{
					ID:       "booking-123",
					UserID:   userID,
					EventID:  req.EventID,
					Quantity: req.Quantity,
					Status:   "processing",
				}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unauthorized without user",
			userID:         "",
			request:        &dto.CreateBookingRequest{EventID: "event-123", Quantity: 2},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "rejects bad payload",
			userID:         "user-123",
			request:        map[string]any{"event_id": "event-123", "quantity": 0},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:    "insufficient capacity",
			userID:  "user-123",
			request: &dto.CreateBookingRequest{EventID: "event-123", Quantity: 5},
			mockFunc: func(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
				return nil, domain.NewInsufficientCapacityError("event-123", 5, 1)
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "INSUFFICIENT_CAPACITY",
		},
		{
			name:    "event busy",
			userID:  "user-123",
			request: &dto.CreateBookingRequest{EventID: "event-123", Quantity: 1},
			mockFunc: func(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrEventBusy
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "EVENT_BUSY",
		},
		{
			name:    "event inactive",
			userID:  "user-123",
			request: &dto.CreateBookingRequest{EventID: "event-123", Quantity: 1},
			mockFunc: func(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrEventInactive
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "EVENT_INACTIVE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockBookingService{CreateBookingFunc: tt.mockFunc}
			handler := NewBookingHandler(mockService)
			router := setupBookingRouter(handler, tt.userID)

			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.expectedCode != "" {
				if code := errorCode(decodeEnvelope(t, w)); code != tt.expectedCode {
					t.Errorf("error code = %q, want %q", code, tt.expectedCode)
				}
			}
		})
	}
}

func TestBookingHandler_CreateBooking_RetryAfterHeader(t *testing.T) {
	mockService := &MockBookingService{
		CreateBookingFunc: func(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
			return nil, domain.ErrEventBusy
		},
	}
	router := setupBookingRouter(NewBookingHandler(mockService), "user-123")

	body, _ := json.Marshal(&dto.CreateBookingRequest{EventID: "event-123", Quantity: 1})
	req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Header().Get("Retry-After") == "" {
		t.Error("busy responses should carry a Retry-After header")
	}
}

func TestBookingHandler_GetBooking(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mockService := &MockBookingService{
			GetBookingFunc: func(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
				return &dto.BookingResponse{ID: bookingID, UserID: userID, Status: "confirmed"}, nil
			},
		}
		router := setupBookingRouter(NewBookingHandler(mockService), "user-123")

		req := httptest.NewRequest(http.MethodGet, "/bookings/booking-123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		mockService := &MockBookingService{
			GetBookingFunc: func(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
				return nil, domain.ErrBookingNotFound
			},
		}
		router := setupBookingRouter(NewBookingHandler(mockService), "user-123")

		req := httptest.NewRequest(http.MethodGet, "/bookings/booking-999", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestBookingHandler_GetUserBookings(t *testing.T) {
	var gotPage, gotPageSize int
	mockService := &MockBookingService{
		GetUserBookingsFunc: func(ctx context.Context, userID string, page, pageSize int) ([]*dto.BookingResponse, int, error) {
			gotPage, gotPageSize = page, pageSize
			return []*dto.BookingResponse{{ID: "b-1"}}, 31, nil
		},
	}
	router := setupBookingRouter(NewBookingHandler(mockService), "user-123")

	req := httptest.NewRequest(http.MethodGet, "/bookings?page=2&page_size=15", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotPage != 2 || gotPageSize != 15 {
		t.Errorf("page=%d page_size=%d, want 2/15", gotPage, gotPageSize)
	}

	body := decodeEnvelope(t, w)
	meta, ok := body["meta"].(map[string]any)
	if !ok {
		t.Fatal("response missing pagination meta")
	}
	if total, _ := meta["total"].(float64); int(total) != 31 {
		t.Errorf("meta.total = %v, want 31", meta["total"])
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	tests := []struct {
		name           string
		mockFunc       func(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "cancels",
			mockFunc: func(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
				return &dto.CancelBookingResponse{BookingID: bookingID, Status: "cancelled", Restored: 2}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "already settled",
			mockFunc: func(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
				return nil, domain.ErrBookingTerminal
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "BOOKING_ALREADY_SETTLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockBookingService{CancelBookingFunc: tt.mockFunc}
			router := setupBookingRouter(NewBookingHandler(mockService), "user-123")

			req := httptest.NewRequest(http.MethodDelete, "/bookings/booking-123", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
			if tt.expectedCode != "" {
				if code := errorCode(decodeEnvelope(t, w)); code != tt.expectedCode {
					t.Errorf("error code = %q, want %q", code, tt.expectedCode)
				}
			}
		})
	}
}
