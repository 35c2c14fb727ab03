package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a capacity-limited event users can register for
type Event struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Date        time.Time `json:"date" bson:"date"`
	Location    string    `json:"location" bson:"location"`
	Category    string    `json:"category" bson:"category"`
	Capacity    int       `json:"capacity" bson:"capacity"`
	Organizer   string    `json:"organizer" bson:"organizer"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// NewEvent builds a validated event with a fresh id
func NewEvent(name, description string, date time.Time, location, category string, capacity int, organizer string) (*Event, error) {
	now := time.Now().UTC()
	e := &Event{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Date:        date.UTC(),
		Location:    strings.TrimSpace(location),
		Category:    strings.TrimSpace(category),
		Capacity:    capacity,
		Organizer:   strings.TrimSpace(organizer),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the required event fields
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrInvalidEventID
	}
	if e.Name == "" {
		return ErrInvalidEventName
	}
	if e.Description == "" {
		return ErrInvalidDescription
	}
	if e.Date.IsZero() {
		return ErrInvalidEventDate
	}
	if e.Capacity < 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// SpotsLeft returns the remaining capacity given the active registration count
func (e *Event) SpotsLeft(registered int) int {
	if left := e.Capacity - registered; left > 0 {
		return left
	}
	return 0
}

// HasCapacityFor reports whether one more registration fits
func (e *Event) HasCapacityFor(registered int) bool {
	return registered < e.Capacity
}

// IsUpcoming reports whether the event starts at or after now
func (e *Event) IsUpcoming(now time.Time) bool {
	return !e.Date.Before(now)
}
