package dto

import (
	"time"

	"github.com/prohmpiriya/event-registration/internal/domain"
)

// Registration list filters
const (
	WhenUpcoming = "upcoming"
	WhenPast     = "past"
)

// CancelledMessage is returned after a successful cancellation
const CancelledMessage = "Registration cancelled"

// ListRegistrationsQuery represents query parameters for the user's registrations
type ListRegistrationsQuery struct {
	When string `form:"when" binding:"omitempty,oneof=upcoming past"`
}

// RegistrationResponse represents a registration in API response
type RegistrationResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	EventID   string    `json:"eventId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegistrationWithEventResponse is a registration with its event. Event is
// null when the event no longer exists.
type RegistrationWithEventResponse struct {
	RegistrationResponse
	Event *EventResponse `json:"event"`
}

// CancelRegistrationResponse represents response after cancelling a registration
type CancelRegistrationResponse struct {
	Message        string `json:"message"`
	RegistrationID string `json:"registrationId"`
}

// RegistrationFromDomain converts domain Registration to RegistrationResponse
func RegistrationFromDomain(r *domain.Registration) *RegistrationResponse {
	return &RegistrationResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		EventID:   r.EventID,
		Status:    r.Status.String(),
		CreatedAt: r.CreatedAt,
	}
}

// RegistrationsWithEventFromDomain converts joined registrations
func RegistrationsWithEventFromDomain(items []*domain.RegistrationWithEvent) []*RegistrationWithEventResponse {
	out := make([]*RegistrationWithEventResponse, 0, len(items))
	for _, item := range items {
		out = append(out, &RegistrationWithEventResponse{
			RegistrationResponse: *RegistrationFromDomain(item.Registration),
			Event:                EventFromDomain(item.Event),
		})
	}
	return out
}

// NewCancelRegistrationResponse builds the cancellation result for reg
func NewCancelRegistrationResponse(reg *domain.Registration) *CancelRegistrationResponse {
	return &CancelRegistrationResponse{
		Message:        CancelledMessage,
		RegistrationID: reg.ID,
	}
}
