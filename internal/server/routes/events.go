package routes

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
	"github.com/fr0stylo/integrationgw/internal/app/ports"
)

const maxEventPageSize = 500

// EventReader exposes persisted webhook events and retries.
type EventReader interface {
	Event(ctx context.Context, id string) (domain.WebhookEvent, error)
	Events(ctx context.Context, filter ports.EventFilter) ([]domain.WebhookEvent, error)
	Retry(ctx context.Context, id string) (domain.ProcessingResult, error)
}

// EventRoutes registers the webhook event audit API.
type EventRoutes struct {
	events   EventReader
	apiToken string
}

// NewEventRoutes constructs event routes.
func NewEventRoutes(events EventReader, apiToken string) *EventRoutes {
	return &EventRoutes{events: events, apiToken: apiToken}
}

// RegisterRoutes registers event endpoints.
func (r *EventRoutes) RegisterRoutes(s *echo.Echo) {
	api := s.Group("/api/events", RequireBearerToken(r.apiToken))
	api.GET("", r.handleList)
	api.GET("/:id", r.handleShow)
	api.POST("/:id/retry", r.handleRetry)
}

func (r *EventRoutes) handleList(c echo.Context) error {
	filter := ports.EventFilter{
		Source: c.QueryParam("source"),
		Type:   c.QueryParam("type"),
	}
	if raw := c.QueryParam("unprocessed"); raw != "" {
		unprocessed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "unprocessed must be a boolean")
		}
		filter.UnprocessedOnly = unprocessed
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}
		filter.Limit = min(limit, maxEventPageSize)
	}
	events, err := r.events.Events(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

func (r *EventRoutes) handleShow(c echo.Context) error {
	event, err := r.events.Event(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, event)
}

func (r *EventRoutes) handleRetry(c echo.Context) error {
	result, err := r.events.Retry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
