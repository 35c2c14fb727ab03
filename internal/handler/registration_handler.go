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

// RegistrationHandler handles registration HTTP requests
type RegistrationHandler struct {
	registrationService service.RegistrationService
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(registrationService service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrationService: registrationService}
}

// Register handles POST /api/events/:id/register
func (h *RegistrationHandler) Register(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.register")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "Not authorized")
		return
	}
	eventID := c.Param("id")
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	reg, err := h.registrationService.Register(ctx, userID, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("registration_id", reg.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.RegistrationFromDomain(reg))
}

// Cancel handles DELETE /api/events/:id/register
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "Not authorized")
		return
	}
	eventID := c.Param("id")
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	result, err := h.registrationService.Cancel(ctx, userID, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.OK(c, result)
}

// ListMine handles GET /api/events/mine
func (h *RegistrationHandler) ListMine(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.list_mine")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "Not authorized")
		return
	}

	var query dto.ListRegistrationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		response.BadRequest(c, "when must be upcoming or past")
		return
	}

	items, err := h.registrationService.ListForUser(ctx, userID, query.When)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(items)))
	response.OK(c, dto.RegistrationsWithEventFromDomain(items))
}
