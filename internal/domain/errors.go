package domain

import "errors"

// Domain errors
var (
	// Event errors
	ErrEventNotFound      = errors.New("event not found")
	ErrInvalidEventID     = errors.New("invalid event id")
	ErrInvalidEventName   = errors.New("event name is required")
	ErrInvalidDescription = errors.New("event description is required")
	ErrInvalidEventDate   = errors.New("event date is required")
	ErrInvalidCapacity    = errors.New("capacity cannot be negative")
	ErrEventAlreadyExists = errors.New("event already exists")
	ErrInvalidDateFilter  = errors.New("date must be RFC 3339 or YYYY-MM-DD")

	// Registration errors
	ErrRegistrationNotFound      = errors.New("registration not found")
	ErrCapacityExceeded          = errors.New("event is at full capacity")
	ErrDuplicateRegistration     = errors.New("user already registered for this event")
	ErrInvalidUserID             = errors.New("invalid user id")
	ErrInvalidRegistrationID     = errors.New("invalid registration id")
	ErrInvalidRegistrationStatus = errors.New("invalid registration status")
	ErrInvalidListFilter         = errors.New("when must be upcoming or past")

	// Outbox errors
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrOutboxMessageNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidEventName) ||
		errors.Is(err, ErrInvalidDescription) ||
		errors.Is(err, ErrInvalidEventDate) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidDateFilter) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidRegistrationID) ||
		errors.Is(err, ErrInvalidRegistrationStatus) ||
		errors.Is(err, ErrInvalidListFilter)
}

// IsConflictError checks if the error is an admission conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrEventAlreadyExists)
}
