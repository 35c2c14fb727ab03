package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/event-registration/internal/dto"
	"github.com/prohmpiriya/event-registration/internal/service"
	"github.com/prohmpiriya/event-registration/pkg/middleware"
	"github.com/prohmpiriya/event-registration/pkg/response"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

// EventHandler handles event catalog HTTP requests
type EventHandler struct {
	eventService service.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// List handles GET /api/events
func (h *EventHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.list")
	defer span.End()

	var query dto.ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		response.BadRequest(c, err.Error())
		return
	}

	events, err := h.eventService.ListEvents(ctx, &query)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, dto.EventsFromDomain(events))
}

// Get handles GET /api/events/:id
func (h *EventHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.get")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("event_id", id))

	detail, err := h.eventService.GetEvent(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, detail)
}

// Create handles POST /api/events
func (h *EventHandler) Create(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.create")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "Not authorized")
		return
	}

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, "Please include all fields")
		return
	}

	event, err := h.eventService.CreateEvent(ctx, userID, &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.EventFromDomain(event))
}
