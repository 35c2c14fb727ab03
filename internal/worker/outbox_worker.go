package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/pkg/kafka"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

// Producer sends messages to Kafka
type Producer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to claim in each poll
	BatchSize int
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// Retention is how long published messages are kept
	Retention time.Duration
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:    100 * time.Millisecond,
		BatchSize:       100,
		CleanupInterval: 1 * time.Hour,
		Retention:       24 * time.Hour,
	}
}

// OutboxWorker polls the outbox table and publishes messages to Kafka
type OutboxWorker struct {
	outboxRepo repository.OutboxRepository
	producer   Producer
	config     *OutboxWorkerConfig
	metrics    *metrics.Metrics
	log        *logger.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(
	outboxRepo repository.OutboxRepository,
	producer Producer,
	config *OutboxWorkerConfig,
	m *metrics.Metrics,
) *OutboxWorker {
	def := DefaultOutboxWorkerConfig()
	if config == nil {
		config = def
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}

	return &OutboxWorker{
		outboxRepo: outboxRepo,
		producer:   producer,
		config:     config,
		metrics:    m,
		log:        logger.Get(),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the outbox worker
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting outbox worker")

	w.wg.Add(1)
	go w.pollPendingMessages(ctx)

	w.wg.Add(1)
	go w.cleanupOldMessages(ctx)

	return nil
}

// Stop stops the outbox worker and waits for in-flight batches
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Outbox worker stopped")
}

// IsRunning reports whether the worker was started and not stopped
func (w *OutboxWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *OutboxWorker) pollPendingMessages(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain relays full batches back to back until the backlog runs short, a
// batch fails, or the worker is stopped.
func (w *OutboxWorker) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		n, err := w.ProcessBatch(ctx)
		if err != nil || n < w.config.BatchSize {
			return
		}
	}
}

// ProcessBatch relays one batch of pending messages and returns how many
// were published.
func (w *OutboxWorker) ProcessBatch(ctx context.Context) (int, error) {
	failed := 0
	published, err := w.outboxRepo.ProcessPending(ctx, w.config.BatchSize, func(ctx context.Context, msg *domain.OutboxMessage) error {
		if err := w.publishMessage(ctx, msg); err != nil {
			failed++
			w.log.Error(fmt.Sprintf("Failed to publish message %s (attempt %d/%d): %v", msg.ID, msg.RetryCount+1, msg.MaxRetries, err))
			return err
		}
		return nil
	})
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to process pending messages: %v", err))
		return 0, err
	}

	w.metrics.RecordOutbox("published", published)
	w.metrics.RecordOutbox("failed", failed)
	return published, nil
}

func (w *OutboxWorker) cleanupOldMessages(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Cleanup(ctx)
		}
	}
}

// Cleanup deletes published messages past retention and refreshes the
// pending gauge
func (w *OutboxWorker) Cleanup(ctx context.Context) {
	deleted, err := w.outboxRepo.DeletePublishedBefore(ctx, time.Now().Add(-w.config.Retention))
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to cleanup old messages: %v", err))
	} else if deleted > 0 {
		w.log.Info(fmt.Sprintf("Cleaned up %d old published messages", deleted))
	}

	counts, err := w.outboxRepo.CountByStatus(ctx)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to count outbox messages: %v", err))
		return
	}
	w.metrics.SetOutboxPending(counts[domain.OutboxStatusPending])
	if failed := counts[domain.OutboxStatusFailed]; failed > 0 {
		w.log.Warn(fmt.Sprintf("%d outbox messages exhausted their retries", failed))
	}
}

func (w *OutboxWorker) publishMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	ctx = telemetry.ExtractHeaders(ctx, msg.Headers)
	ctx, span := telemetry.StartSpan(ctx, "worker.outbox.publish")
	defer span.End()

	headers := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["event_type"] = msg.EventType
	headers["aggregate_type"] = msg.AggregateType
	headers["aggregate_id"] = msg.AggregateID
	headers["content_type"] = "application/json"
	headers["source"] = "outbox-worker"

	kafkaMsg := &kafka.Message{
		Topic:     msg.Topic,
		Key:       []byte(msg.PartitionKey),
		Value:     msg.Payload,
		Headers:   headers,
		Timestamp: msg.CreatedAt,
	}

	if err := w.producer.Produce(ctx, kafkaMsg); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}
