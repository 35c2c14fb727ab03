package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/pkg/response"
)

// Error codes returned by the registration API
const (
	CodeEventNotFound         = "EVENT_NOT_FOUND"
	CodeRegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	CodeDuplicateRegistration = "DUPLICATE_REGISTRATION"
	CodeEventAlreadyExists    = "EVENT_ALREADY_EXISTS"
	CodeValidation            = "VALIDATION_ERROR"
)

// Client facing messages
const (
	MsgEventNotFound         = "Event not found"
	MsgRegistrationNotFound  = "Registration not found"
	MsgCapacityExceeded      = "Event is at full capacity"
	MsgDuplicateRegistration = "User already registered for this event"
)

// handleError maps domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		response.NotFound(c, CodeEventNotFound, MsgEventNotFound)
	case errors.Is(err, domain.ErrRegistrationNotFound):
		response.NotFound(c, CodeRegistrationNotFound, MsgRegistrationNotFound)
	case errors.Is(err, domain.ErrCapacityExceeded):
		response.Error(c, http.StatusBadRequest, CodeCapacityExceeded, MsgCapacityExceeded)
	case errors.Is(err, domain.ErrDuplicateRegistration):
		response.Error(c, http.StatusBadRequest, CodeDuplicateRegistration, MsgDuplicateRegistration)
	case errors.Is(err, domain.ErrEventAlreadyExists):
		response.Error(c, http.StatusConflict, CodeEventAlreadyExists, err.Error())
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, CodeValidation, err.Error())
	default:
		response.InternalError(c, err)
	}
}
