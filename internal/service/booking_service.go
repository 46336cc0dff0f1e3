package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/internal/dto"
	"github.com/evently/evently/internal/repository"
	"github.com/evently/evently/pkg/logger"
	"github.com/evently/evently/pkg/telemetry"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking reserves tickets and queues asynchronous confirmation
	CreateBooking(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error)

	// GetBooking retrieves a booking owned by the user
	GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)

	// GetUserBookings retrieves a page of the user's bookings
	GetUserBookings(ctx context.Context, userID string, page, pageSize int) ([]*dto.BookingResponse, int, error)

	// CancelBooking cancels a booking owned by the user and restores
	// its tickets
	CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error)
}

// bookingService implements BookingService
type bookingService struct {
	inventoryRepo   repository.InventoryRepository
	bookingRepo     repository.BookingRepository
	cache           repository.AvailabilityCache
	publisher       EventPublisher
	taskMaxAttempts int
	log             *logger.Logger
}

// BookingServiceConfig contains configuration for the booking service
type BookingServiceConfig struct {
	TaskMaxAttempts int
}

// NewBookingService creates a new booking service
func NewBookingService(
	inventoryRepo repository.InventoryRepository,
	bookingRepo repository.BookingRepository,
	cache repository.AvailabilityCache,
	publisher EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	maxAttempts := 5
	if cfg != nil && cfg.TaskMaxAttempts > 0 {
		maxAttempts = cfg.TaskMaxAttempts
	}
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	return &bookingService{
		inventoryRepo:   inventoryRepo,
		bookingRepo:     bookingRepo,
		cache:           cache,
		publisher:       publisher,
		taskMaxAttempts: maxAttempts,
		log:             logger.Get(),
	}
}

// CreateBooking reserves tickets and queues asynchronous confirmation
func (s *bookingService) CreateBooking(ctx context.Context, userID, userEmail string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if req == nil || req.Quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, domain.ErrInvalidQuantity
	}
	if req.EventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.Int("quantity", req.Quantity),
	)

	booking, err := s.inventoryRepo.Reserve(ctx, &repository.ReserveParams{
		EventID:         req.EventID,
		UserID:          userID,
		UserEmail:       userEmail,
		Quantity:        req.Quantity,
		TaskMaxAttempts: s.taskMaxAttempts,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.invalidateAvailability(ctx, booking.EventID)

	if err := s.publisher.PublishBookingCreated(ctx, booking); err != nil {
		// The booking is durable; the stream is best-effort
		s.log.Warn("failed to publish booking created event",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return dto.BookingFromDomain(booking), nil
}

// GetBooking retrieves a booking owned by the user
func (s *bookingService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// Another user's booking is indistinguishable from a missing one
	if booking.UserID != userID {
		span.SetStatus(codes.Error, "owner mismatch")
		return nil, domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return dto.BookingFromDomain(booking), nil
}

// GetUserBookings retrieves a page of the user's bookings
func (s *bookingService) GetUserBookings(ctx context.Context, userID string, page, pageSize int) ([]*dto.BookingResponse, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get_user_bookings")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	bookings, total, err := s.bookingRepo.GetByUserID(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.BookingsFromDomain(bookings), total, nil
}

// CancelBooking cancels a booking owned by the user and restores its tickets
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if booking.UserID != userID {
		span.SetStatus(codes.Error, "owner mismatch")
		return nil, domain.ErrBookingNotFound
	}

	cancelled, err := s.inventoryRepo.Release(ctx, bookingID,
		[]domain.BookingStatus{domain.BookingStatusProcessing, domain.BookingStatusConfirmed},
		domain.BookingStatusCancelled, "cancelled by user")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.invalidateAvailability(ctx, cancelled.EventID)

	if err := s.publisher.PublishBookingCancelled(ctx, cancelled); err != nil {
		s.log.Warn("failed to publish booking cancelled event",
			zap.String("booking_id", cancelled.ID), zap.Error(err))
	}

	span.SetStatus(codes.Ok, "")
	return &dto.CancelBookingResponse{
		BookingID: cancelled.ID,
		Status:    string(cancelled.Status),
		Restored:  cancelled.Quantity,
	}, nil
}

// invalidateAvailability drops the cached availability after an inventory
// move. Cache errors are logged, never surfaced; readers fall back to the
// database and the entry expires by TTL anyway.
func (s *bookingService) invalidateAvailability(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, eventID); err != nil {
		s.log.Warn("failed to invalidate availability cache",
			zap.String("event_id", eventID), zap.Error(err))
	}
}
