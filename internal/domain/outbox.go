package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxRetries is the publish attempt budget of a new message
const DefaultOutboxMaxRetries = 5

// IsValid checks if the status is a valid OutboxStatus
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusPublished, OutboxStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of OutboxStatus
func (s OutboxStatus) String() string {
	return string(s)
}

// OutboxMessage is a message written in the same transaction as the state
// change it describes, relayed to Kafka later
type OutboxMessage struct {
	ID            string            `json:"id"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	EventType     string            `json:"event_type"`
	Payload       []byte            `json:"payload"`
	Topic         string            `json:"topic"`
	PartitionKey  string            `json:"partition_key"`
	Headers       map[string]string `json:"headers,omitempty"`
	Status        OutboxStatus      `json:"status"`
	RetryCount    int               `json:"retry_count"`
	MaxRetries    int               `json:"max_retries"`
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	PublishedAt   *time.Time        `json:"published_at,omitempty"`
}

// NewOutboxMessage creates a pending outbox message
func NewOutboxMessage(aggregateType, aggregateID, eventType, topic, partitionKey string, payload interface{}) (*OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if partitionKey == "" {
		partitionKey = aggregateID
	}

	return &OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		Topic:         topic,
		PartitionKey:  partitionKey,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// RegistrationOutboxMessage wraps a registration event for the outbox
func RegistrationOutboxMessage(evt *RegistrationEvent, topic string) (*OutboxMessage, error) {
	msg, err := NewOutboxMessage(
		AggregateTypeRegistration,
		evt.RegistrationID,
		string(evt.Type),
		topic,
		evt.PartitionKey(),
		evt,
	)
	if err != nil {
		return nil, err
	}
	msg.Headers = map[string]string{
		"event_type": string(evt.Type),
		"message_id": evt.ID,
	}
	return msg, nil
}

// CanRetry checks if another publish attempt is allowed
func (m *OutboxMessage) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// MarkAsPublished marks the message as successfully published
func (m *OutboxMessage) MarkAsPublished() {
	now := time.Now().UTC()
	m.Status = OutboxStatusPublished
	m.PublishedAt = &now
}

// MarkAttemptFailed records a failed publish attempt. The message stays
// pending while retries remain.
func (m *OutboxMessage) MarkAttemptFailed(reason string) {
	m.RetryCount++
	m.LastError = reason
	if m.CanRetry() {
		m.Status = OutboxStatusPending
		return
	}
	m.Status = OutboxStatusFailed
}

// GetPayload unmarshals the payload into v
func (m *OutboxMessage) GetPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
