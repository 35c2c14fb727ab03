package dto

import (
	"time"

	"github.com/prohmpiriya/event-registration/internal/domain"
)

// CreateEventRequest represents request to create an event
type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required,max=255"`
	Description string    `json:"description" binding:"required"`
	Date        time.Time `json:"date" binding:"required"`
	Location    string    `json:"location" binding:"max=255"`
	Category    string    `json:"category" binding:"max=100"`
	Capacity    *int      `json:"capacity" binding:"required,min=0"`
	Organizer   string    `json:"organizer" binding:"max=255"`
}

// ListEventsQuery represents query parameters for listing events
type ListEventsQuery struct {
	Search   string `form:"search"`
	Category string `form:"category"`
	Location string `form:"location"`
	// Date keeps events on or after it, RFC 3339 or YYYY-MM-DD
	Date   string `form:"date"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// EventResponse represents an event in API response
type EventResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Capacity    int       `json:"capacity"`
	Organizer   string    `json:"organizer"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EventDetailResponse is an event with its live registration count
type EventDetailResponse struct {
	EventResponse
	Registered int `json:"registered"`
	SpotsLeft  int `json:"spotsLeft"`
}

// EventFromDomain converts domain Event to EventResponse
func EventFromDomain(e *domain.Event) *EventResponse {
	if e == nil {
		return nil
	}
	return &EventResponse{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Date:        e.Date,
		Location:    e.Location,
		Category:    e.Category,
		Capacity:    e.Capacity,
		Organizer:   e.Organizer,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// EventsFromDomain converts a slice of events
func EventsFromDomain(events []*domain.Event) []*EventResponse {
	out := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, EventFromDomain(e))
	}
	return out
}

// EventDetailFromDomain builds the detail view of e with registered seats taken
func EventDetailFromDomain(e *domain.Event, registered int) *EventDetailResponse {
	return &EventDetailResponse{
		EventResponse: *EventFromDomain(e),
		Registered:    registered,
		SpotsLeft:     e.SpotsLeft(registered),
	}
}
