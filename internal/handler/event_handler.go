package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/evently/evently/internal/service"
	"github.com/evently/evently/pkg/response"
	"github.com/evently/evently/pkg/telemetry"
)

// EventHandler handles public event HTTP requests
type EventHandler struct {
	eventService        service.EventService
	availabilityService service.AvailabilityService
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService service.EventService, availabilityService service.AvailabilityService) *EventHandler {
	return &EventHandler{
		eventService:        eventService,
		availabilityService: availabilityService,
	}
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	// Public listings show bookable events unless all=true
	onlyActive := true
	if all := c.Query("all"); all != "" {
		if v, err := strconv.ParseBool(all); err == nil && v {
			onlyActive = false
		}
	}

	page, pageSize := parsePagination(c)

	span.SetAttributes(
		attribute.Bool("only_active", onlyActive),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	events, total, err := h.eventService.ListEvents(ctx, onlyActive, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Paginated(c, events, &response.Meta{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// GetEvent handles GET /events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		response.BadRequest(c, "event id required")
		return
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := h.eventService.GetEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, event)
}

// GetAvailability handles GET /events/:id/availability
func (h *EventHandler) GetAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.availability")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		response.BadRequest(c, "event id required")
		return
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	availability, err := h.availabilityService.GetAvailability(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetAttributes(
		attribute.Int("available", availability.Available),
		attribute.Bool("cached", availability.Cached),
	)
	span.SetStatus(codes.Ok, "")
	response.Success(c, availability)
}
