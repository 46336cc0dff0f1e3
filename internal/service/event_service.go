package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/internal/dto"
	"github.com/evently/evently/internal/repository"
	"github.com/evently/evently/pkg/logger"
	"github.com/evently/evently/pkg/telemetry"
)

// EventService defines the interface for event browsing and administration
type EventService interface {
	// ListEvents retrieves a page of events
	ListEvents(ctx context.Context, onlyActive bool, page, pageSize int) ([]*dto.EventResponse, int, error)

	// GetEvent retrieves a single event
	GetEvent(ctx context.Context, id string) (*dto.EventResponse, error)

	// CreateEvent creates a new event
	CreateEvent(ctx context.Context, req *dto.CreateEventRequest) (*dto.EventResponse, error)

	// UpdateEvent applies partial updates to an event
	UpdateEvent(ctx context.Context, id string, req *dto.UpdateEventRequest) (*dto.EventResponse, error)

	// SetEventActive opens or closes an event for booking
	SetEventActive(ctx context.Context, id string, active bool) error

	// GetAnalytics aggregates booking activity for one event
	GetAnalytics(ctx context.Context, id string) (*domain.EventAnalytics, error)

	// ListAnalytics aggregates booking activity across all events
	ListAnalytics(ctx context.Context) ([]*domain.EventAnalytics, error)

	// NotifyEventUsers queues an email to everyone holding a booking
	NotifyEventUsers(ctx context.Context, eventID string, req *dto.NotifyEventUsersRequest) (*dto.NotifyEventUsersResponse, error)
}

// eventService implements EventService
type eventService struct {
	eventRepo       repository.EventRepository
	taskRepo        repository.TaskRepository
	cache           repository.AvailabilityCache
	taskMaxAttempts int
	log             *logger.Logger
}

// NewEventService creates a new event service
func NewEventService(
	eventRepo repository.EventRepository,
	taskRepo repository.TaskRepository,
	cache repository.AvailabilityCache,
	taskMaxAttempts int,
) EventService {
	if taskMaxAttempts <= 0 {
		taskMaxAttempts = 5
	}
	return &eventService{
		eventRepo:       eventRepo,
		taskRepo:        taskRepo,
		cache:           cache,
		taskMaxAttempts: taskMaxAttempts,
		log:             logger.Get(),
	}
}

// ListEvents retrieves a page of events
func (s *eventService) ListEvents(ctx context.Context, onlyActive bool, page, pageSize int) ([]*dto.EventResponse, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.list")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	events, total, err := s.eventRepo.List(ctx, onlyActive, pageSize, (page-1)*pageSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return dto.EventsFromDomain(events), total, nil
}

// GetEvent retrieves a single event
func (s *eventService) GetEvent(ctx context.Context, id string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.EventFromDomain(event), nil
}

// CreateEvent creates a new event
func (s *eventService) CreateEvent(ctx context.Context, req *dto.CreateEventRequest) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.create")
	defer span.End()

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	event := &domain.Event{
		Name:           req.Name,
		Description:    req.Description,
		Organizer:      req.Organizer,
		Venue:          req.Venue,
		StartsAt:       req.StartsAt,
		Capacity:       req.Capacity,
		PricePerTicket: req.PricePerTicket,
		IsActive:       active,
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("event_id", event.ID))
	span.SetStatus(codes.Ok, "")
	return dto.EventFromDomain(event), nil
}

// UpdateEvent applies partial updates to an event
func (s *eventService) UpdateEvent(ctx context.Context, id string, req *dto.UpdateEventRequest) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.update")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if req.Name != nil {
		event.Name = *req.Name
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Organizer != nil {
		event.Organizer = *req.Organizer
	}
	if req.Venue != nil {
		event.Venue = *req.Venue
	}
	if req.StartsAt != nil {
		event.StartsAt = *req.StartsAt
	}
	if req.Capacity != nil {
		// Shrinking below the committed count would strand sold tickets
		if *req.Capacity < event.CommittedCount {
			span.SetStatus(codes.Error, "capacity below committed count")
			return nil, domain.ErrInvalidCapacity
		}
		event.Capacity = *req.Capacity
	}
	if req.PricePerTicket != nil {
		event.PricePerTicket = *req.PricePerTicket
	}
	if req.IsActive != nil {
		event.IsActive = *req.IsActive
	}

	if err := s.eventRepo.Update(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Capacity or active changes make the cached availability stale
	s.invalidateAvailability(ctx, id)

	span.SetStatus(codes.Ok, "")
	return dto.EventFromDomain(event), nil
}

// SetEventActive opens or closes an event for booking
func (s *eventService) SetEventActive(ctx context.Context, id string, active bool) error {
	ctx, span := telemetry.StartSpan(ctx, "service.event.set_active")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", id),
		attribute.Bool("active", active),
	)

	if err := s.eventRepo.SetActive(ctx, id, active); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.invalidateAvailability(ctx, id)

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetAnalytics aggregates booking activity for one event
func (s *eventService) GetAnalytics(ctx context.Context, id string) (*domain.EventAnalytics, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get_analytics")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	analytics, err := s.eventRepo.GetAnalytics(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return analytics, nil
}

// ListAnalytics aggregates booking activity across all events
func (s *eventService) ListAnalytics(ctx context.Context) ([]*domain.EventAnalytics, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.list_analytics")
	defer span.End()

	analytics, err := s.eventRepo.ListAnalytics(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return analytics, nil
}

// NotifyEventUsers queues an email to everyone holding a booking
func (s *eventService) NotifyEventUsers(ctx context.Context, eventID string, req *dto.NotifyEventUsersRequest) (*dto.NotifyEventUsersResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.notify_users")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	if _, err := s.eventRepo.GetByID(ctx, eventID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	task, err := domain.NewTask(domain.TaskKindNotifyEventUsers, "", &domain.NotifyPayload{
		EventID: eventID,
		Subject: req.Subject,
		Body:    req.Body,
	}, s.taskMaxAttempts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	task.ID = uuid.New().String()

	if err := s.taskRepo.Create(ctx, task); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.Info("queued event notification",
		zap.String("event_id", eventID), zap.String("task_id", task.ID))

	span.SetAttributes(attribute.String("task_id", task.ID))
	span.SetStatus(codes.Ok, "")
	return &dto.NotifyEventUsersResponse{TaskID: task.ID, EventID: eventID}, nil
}

func (s *eventService) invalidateAvailability(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, eventID); err != nil {
		s.log.Warn("failed to invalidate availability cache",
			zap.String("event_id", eventID), zap.Error(err))
	}
}
