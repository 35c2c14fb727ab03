package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus represents the status of a registration
type RegistrationStatus string

const (
	// RegistrationStatusRegistered is the only persisted status. Cancellation
	// removes the row.
	RegistrationStatusRegistered RegistrationStatus = "registered"
)

// IsValid checks if the status is a valid RegistrationStatus
func (s RegistrationStatus) IsValid() bool {
	return s == RegistrationStatusRegistered
}

// String returns the string representation of RegistrationStatus
func (s RegistrationStatus) String() string {
	return string(s)
}

// Registration links a user to an event
type Registration struct {
	ID        string             `json:"id" bson:"_id"`
	UserID    string             `json:"user_id" bson:"user_id"`
	EventID   string             `json:"event_id" bson:"event_id"`
	Status    RegistrationStatus `json:"status" bson:"status"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// NewRegistration builds an active registration for userID on eventID
func NewRegistration(userID, eventID string) (*Registration, error) {
	r := &Registration{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		EventID:   strings.TrimSpace(eventID),
		Status:    RegistrationStatusRegistered,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate validates all registration fields
func (r *Registration) Validate() error {
	if r.ID == "" {
		return ErrInvalidRegistrationID
	}
	if r.UserID == "" {
		return ErrInvalidUserID
	}
	if r.EventID == "" {
		return ErrInvalidEventID
	}
	if !r.Status.IsValid() {
		return ErrInvalidRegistrationStatus
	}
	return nil
}

// IsActive reports whether the registration holds a seat
func (r *Registration) IsActive() bool {
	return r.Status == RegistrationStatusRegistered
}

// RegistrationWithEvent is a registration joined with its event. Event is nil
// when the event no longer resolves.
type RegistrationWithEvent struct {
	*Registration
	Event *Event `json:"event"`
}
