package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/evently/evently/internal/dto"
	"github.com/evently/evently/internal/service"
	"github.com/evently/evently/pkg/response"
	"github.com/evently/evently/pkg/telemetry"
)

// AdminHandler handles staff-only event management requests
type AdminHandler struct {
	eventService service.EventService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(eventService service.EventService) *AdminHandler {
	return &AdminHandler{eventService: eventService}
}

// CreateEvent handles POST /admin/events
func (h *AdminHandler) CreateEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.create_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("name", req.Name),
		attribute.Int("capacity", req.Capacity),
	)

	event, err := h.eventService.CreateEvent(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetAttributes(attribute.String("event_id", event.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, event)
}

// UpdateEvent handles PATCH /admin/events/:id
func (h *AdminHandler) UpdateEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.update_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		response.BadRequest(c, "event id required")
		return
	}

	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := h.eventService.UpdateEvent(ctx, eventID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, event)
}

// setEventActiveRequest toggles whether an event accepts bookings
type setEventActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetEventActive handles PATCH /admin/events/:id/active
func (h *AdminHandler) SetEventActive(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.set_event_active")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		response.BadRequest(c, "event id required")
		return
	}

	var req setEventActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Bool("active", *req.Active),
	)

	if err := h.eventService.SetEventActive(ctx, eventID, *req.Active); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"event_id": eventID, "active": *req.Active})
}

// GetAnalytics handles GET /admin/events/:id/analytics
func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.get_analytics")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		response.BadRequest(c, "event id required")
		return
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	analytics, err := h.eventService.GetAnalytics(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, analytics)
}

// ListAnalytics handles GET /admin/analytics
func (h *AdminHandler) ListAnalytics(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.list_analytics")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	analytics, err := h.eventService.ListAnalytics(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, analytics)
}

// NotifyEventUsers handles POST /admin/events/:id/notify
func (h *AdminHandler) NotifyEventUsers(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.notify_event_users")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		response.BadRequest(c, "event id required")
		return
	}

	var req dto.NotifyEventUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.eventService.NotifyEventUsers(ctx, eventID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleDomainError(c, err)
		return
	}

	span.SetAttributes(attribute.String("task_id", result.TaskID))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
