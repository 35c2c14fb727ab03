package domain

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationEventType is the type of a registration state change message
type RegistrationEventType string

const (
	RegistrationEventCreated   RegistrationEventType = "registration.created"
	RegistrationEventCancelled RegistrationEventType = "registration.cancelled"
)

// AggregateTypeRegistration is the outbox aggregate type for registrations
const AggregateTypeRegistration = "registration"

// RegistrationEvent is the message published when a registration changes
type RegistrationEvent struct {
	ID             string                `json:"id"`
	Type           RegistrationEventType `json:"type"`
	RegistrationID string                `json:"registration_id"`
	UserID         string                `json:"user_id"`
	EventID        string                `json:"event_id"`
	Status         RegistrationStatus    `json:"status"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

// NewRegistrationEvent describes a change of reg
func NewRegistrationEvent(eventType RegistrationEventType, reg *Registration) *RegistrationEvent {
	return &RegistrationEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		EventID:        reg.EventID,
		Status:         reg.Status,
		OccurredAt:     time.Now().UTC(),
	}
}

// PartitionKey keeps all changes of one event on one partition
func (e *RegistrationEvent) PartitionKey() string {
	return e.EventID
}
