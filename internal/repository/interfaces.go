package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prohmpiriya/event-registration/internal/domain"
)

// EventFilter narrows event listings. Empty fields do not filter.
type EventFilter struct {
	// Search matches a case-insensitive substring of the name
	Search string
	// Category and Location match case-insensitive substrings
	Category string
	Location string
	// From keeps events on or after this instant
	From   *time.Time
	Limit  int
	Offset int
}

// EventRepository defines the interface for event data access
type EventRepository interface {
	// Create stores a new event
	Create(ctx context.Context, event *domain.Event) error
	// GetByID retrieves an event, or domain.ErrEventNotFound
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	// List returns events matching filter ordered by date ascending
	List(ctx context.Context, filter *EventFilter) ([]*domain.Event, error)
	// DeleteAll removes every event and, with it, every registration
	DeleteAll(ctx context.Context) (int64, error)
}

// RegistrationRepository defines the interface for registration data access.
// Every implementation must make Admit a single atomic step: concurrent
// admissions for one event never exceed its capacity.
type RegistrationRepository interface {
	// Admit inserts reg when its event exists and has a free seat and the
	// user holds no active registration for it. Failures, checked in order:
	// domain.ErrEventNotFound, domain.ErrCapacityExceeded,
	// domain.ErrDuplicateRegistration.
	Admit(ctx context.Context, reg *domain.Registration) error
	// Remove deletes the user's registration for the event and returns it,
	// or domain.ErrRegistrationNotFound
	Remove(ctx context.Context, userID, eventID string) (*domain.Registration, error)
	// CountByEvent returns the number of active registrations for an event
	CountByEvent(ctx context.Context, eventID string) (int, error)
	// ListByUser returns the user's registrations, newest first
	ListByUser(ctx context.Context, userID string) ([]*domain.Registration, error)
}

// OutboxRepository defines the interface for outbox data access
type OutboxRepository interface {
	// CreateTx stores msg inside an open transaction
	CreateTx(ctx context.Context, tx pgx.Tx, msg *domain.OutboxMessage) error
	// ProcessPending locks up to limit pending messages, hands each to fn and
	// records the outcome, all in one transaction. Returns how many were
	// published.
	ProcessPending(ctx context.Context, limit int, fn func(ctx context.Context, msg *domain.OutboxMessage) error) (int, error)
	// DeletePublishedBefore removes published messages older than before
	DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus reports queue depth per status
	CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error)
}
