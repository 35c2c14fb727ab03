package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/pkg/kafka"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

// EventPublisher defines the interface for publishing registration events
type EventPublisher interface {
	// PublishRegistrationCreated publishes a registration created event
	PublishRegistrationCreated(ctx context.Context, reg *domain.Registration) error

	// PublishRegistrationCancelled publishes a registration cancelled event
	PublishRegistrationCancelled(ctx context.Context, reg *domain.Registration) error

	// Close closes the event publisher
	Close() error
}

// MessageProducer sends messages to Kafka
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	Close()
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "event-registration-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewKafkaEventPublisherWithProducer(producer, cfg.Topic, cfg.ServiceName), nil
}

// NewKafkaEventPublisherWithProducer publishes through an existing producer
func NewKafkaEventPublisherWithProducer(producer MessageProducer, topic, serviceName string) *KafkaEventPublisher {
	if topic == "" {
		topic = "registration-events"
	}
	if serviceName == "" {
		serviceName = "event-registration"
	}
	return &KafkaEventPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}
}

// PublishRegistrationCreated publishes a registration created event
func (p *KafkaEventPublisher) PublishRegistrationCreated(ctx context.Context, reg *domain.Registration) error {
	return p.publishEvent(ctx, domain.RegistrationEventCreated, reg)
}

// PublishRegistrationCancelled publishes a registration cancelled event
func (p *KafkaEventPublisher) PublishRegistrationCancelled(ctx context.Context, reg *domain.Registration) error {
	return p.publishEvent(ctx, domain.RegistrationEventCancelled, reg)
}

// Close closes the event publisher
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

func (p *KafkaEventPublisher) publishEvent(ctx context.Context, eventType domain.RegistrationEventType, reg *domain.Registration) error {
	event := domain.NewRegistrationEvent(eventType, reg)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := telemetry.InjectHeaders(ctx, map[string]string{
		"event_type":   string(eventType),
		"event_id":     event.ID,
		"source":       p.serviceName,
		"content_type": "application/json",
	})

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(event.PartitionKey()),
		Value:     value,
		Headers:   headers,
		Timestamp: event.OccurredAt,
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	return nil
}

// NoOpEventPublisher is a no-op implementation of EventPublisher. It serves
// stores that relay their own changes through the outbox.
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// PublishRegistrationCreated is a no-op
func (p *NoOpEventPublisher) PublishRegistrationCreated(ctx context.Context, reg *domain.Registration) error {
	return nil
}

// PublishRegistrationCancelled is a no-op
func (p *NoOpEventPublisher) PublishRegistrationCancelled(ctx context.Context, reg *domain.Registration) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}
