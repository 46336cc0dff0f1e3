package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/evently/evently/internal/domain"
	"github.com/evently/evently/pkg/response"
)

// handleDomainError converts domain errors to HTTP responses
func handleDomainError(c *gin.Context, err error) {
	var capErr *domain.InsufficientCapacityError

	switch {
	case errors.As(err, &capErr):
		response.Conflict(c, "INSUFFICIENT_CAPACITY", capErr.Error(), gin.H{
			"event_id":  capErr.EventID,
			"requested": capErr.Requested,
			"available": capErr.Available,
		})
	case errors.Is(err, domain.ErrInsufficientCapacity):
		response.Conflict(c, "INSUFFICIENT_CAPACITY", err.Error(), nil)
	case errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrBookingTerminal):
		response.Conflict(c, "BOOKING_ALREADY_SETTLED", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Conflict(c, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, domain.ErrEventInactive):
		response.Conflict(c, "EVENT_INACTIVE", err.Error(), nil)
	case errors.Is(err, domain.ErrEventStarted):
		response.Conflict(c, "EVENT_STARTED", err.Error(), nil)
	case errors.Is(err, domain.ErrEventBusy):
		// Retryable: the event row lock timed out under contention
		c.Header("Retry-After", "1")
		response.ServiceUnavailable(c, "EVENT_BUSY", "the event is under heavy load, retry shortly")
	case errors.Is(err, domain.ErrRateLimited):
		response.TooManyRequests(c, err.Error())
	case domain.IsValidationError(err):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// parsePagination reads page and page_size query parameters with bounds
func parsePagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if p := c.Query("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if n, err := strconv.Atoi(ps); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	return page, pageSize
}
