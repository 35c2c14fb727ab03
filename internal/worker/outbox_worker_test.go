package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/pkg/kafka"
)

// fakeOutboxRepository keeps messages in memory and applies the same
// status transitions as the postgres implementation
type fakeOutboxRepository struct {
	mu            sync.Mutex
	messages      []*domain.OutboxMessage
	deletedBefore time.Time
	countErr      error
}

func (r *fakeOutboxRepository) CreateTx(ctx context.Context, tx pgx.Tx, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeOutboxRepository) ProcessPending(ctx context.Context, limit int, fn func(ctx context.Context, msg *domain.OutboxMessage) error) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	published, claimed := 0, 0
	for _, msg := range r.messages {
		if claimed == limit {
			break
		}
		if msg.Status != domain.OutboxStatusPending {
			continue
		}
		claimed++
		if err := fn(ctx, msg); err != nil {
			msg.MarkAttemptFailed(err.Error())
			continue
		}
		msg.MarkAsPublished()
		published++
	}
	return published, nil
}

func (r *fakeOutboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedBefore = before

	var kept []*domain.OutboxMessage
	var deleted int64
	for _, msg := range r.messages {
		if msg.Status == domain.OutboxStatusPublished && msg.PublishedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	r.messages = kept
	return deleted, nil
}

func (r *fakeOutboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return nil, r.countErr
	}
	counts := make(map[domain.OutboxStatus]int64)
	for _, msg := range r.messages {
		counts[msg.Status]++
	}
	return counts, nil
}

func (r *fakeOutboxRepository) statuses() []domain.OutboxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OutboxStatus, len(r.messages))
	for i, msg := range r.messages {
		out[i] = msg.Status
	}
	return out
}

// backlogOutboxRepository always reports a full batch, as if writers kept
// the outbox ahead of the relay
type backlogOutboxRepository struct {
	fakeOutboxRepository
	batches atomic.Int64
}

func (r *backlogOutboxRepository) ProcessPending(ctx context.Context, limit int, fn func(ctx context.Context, msg *domain.OutboxMessage) error) (int, error) {
	r.batches.Add(1)
	return limit, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	err      error
}

func (p *fakeProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) produced() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func newOutboxMessage(t *testing.T, eventType domain.RegistrationEventType) *domain.OutboxMessage {
	t.Helper()
	evt := domain.NewRegistrationEvent(eventType, &domain.Registration{
		ID:        "reg-1",
		UserID:    "user-1",
		EventID:   "event-1",
		Status:    domain.RegistrationStatusRegistered,
		CreatedAt: time.Now().UTC(),
	})
	msg, err := domain.RegistrationOutboxMessage(evt, "registration-events")
	require.NoError(t, err)
	return msg
}

func TestDefaultOutboxWorkerConfig(t *testing.T) {
	config := DefaultOutboxWorkerConfig()

	if config.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want %v", config.PollInterval, 100*time.Millisecond)
	}
	if config.BatchSize != 100 {
		t.Errorf("BatchSize = %v, want %v", config.BatchSize, 100)
	}
	if config.CleanupInterval != 1*time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", config.CleanupInterval, 1*time.Hour)
	}
	if config.Retention != 24*time.Hour {
		t.Errorf("Retention = %v, want %v", config.Retention, 24*time.Hour)
	}
}

func TestNewOutboxWorker_FillsZeroValues(t *testing.T) {
	worker := NewOutboxWorker(nil, nil, &OutboxWorkerConfig{BatchSize: 10}, nil)

	if worker.config.BatchSize != 10 {
		t.Errorf("BatchSize = %v, want %v", worker.config.BatchSize, 10)
	}
	if worker.config.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want %v", worker.config.PollInterval, 100*time.Millisecond)
	}
	if worker.IsRunning() {
		t.Error("Worker should not be running initially")
	}
}

func TestProcessBatch_PublishesPending(t *testing.T) {
	repo := &fakeOutboxRepository{}
	repo.messages = []*domain.OutboxMessage{
		newOutboxMessage(t, domain.RegistrationEventCreated),
		newOutboxMessage(t, domain.RegistrationEventCancelled),
	}
	producer := &fakeProducer{}
	m := metrics.New(prometheus.NewRegistry())
	worker := NewOutboxWorker(repo, producer, nil, m)

	n, err := worker.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.Equal(t, 2, producer.produced())
	assert.Equal(t, []domain.OutboxStatus{domain.OutboxStatusPublished, domain.OutboxStatusPublished}, repo.statuses())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxPublished.WithLabelValues("published")))

	first := producer.messages[0]
	assert.Equal(t, "registration-events", first.Topic)
	assert.Equal(t, []byte("event-1"), first.Key)
	assert.Equal(t, string(domain.RegistrationEventCreated), first.Headers["event_type"])
	assert.Equal(t, domain.AggregateTypeRegistration, first.Headers["aggregate_type"])
	assert.Equal(t, "reg-1", first.Headers["aggregate_id"])
}

func TestProcessBatch_FailureKeepsMessagePending(t *testing.T) {
	repo := &fakeOutboxRepository{}
	msg := newOutboxMessage(t, domain.RegistrationEventCreated)
	msg.MaxRetries = 2
	repo.messages = []*domain.OutboxMessage{msg}
	producer := &fakeProducer{err: errors.New("broker unavailable")}
	m := metrics.New(prometheus.NewRegistry())
	worker := NewOutboxWorker(repo, producer, nil, m)

	n, err := worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, domain.OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)
	assert.Equal(t, "broker unavailable", msg.LastError)

	_, err = worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusFailed, msg.Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxPublished.WithLabelValues("failed")))
}

func TestCleanup_DeletesOldAndSetsPendingGauge(t *testing.T) {
	repo := &fakeOutboxRepository{}
	old := newOutboxMessage(t, domain.RegistrationEventCreated)
	old.MarkAsPublished()
	longAgo := time.Now().Add(-48 * time.Hour)
	old.PublishedAt = &longAgo
	recent := newOutboxMessage(t, domain.RegistrationEventCreated)
	recent.MarkAsPublished()
	pending := newOutboxMessage(t, domain.RegistrationEventCancelled)
	repo.messages = []*domain.OutboxMessage{old, recent, pending}

	m := metrics.New(prometheus.NewRegistry())
	worker := NewOutboxWorker(repo, &fakeProducer{}, nil, m)

	worker.Cleanup(context.Background())

	assert.Equal(t, []domain.OutboxStatus{domain.OutboxStatusPublished, domain.OutboxStatusPending}, repo.statuses())
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), repo.deletedBefore, time.Minute)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxPending))
}

func TestCleanup_CountErrorLeavesGauge(t *testing.T) {
	repo := &fakeOutboxRepository{countErr: errors.New("connection reset")}
	m := metrics.New(prometheus.NewRegistry())
	m.SetOutboxPending(7)
	worker := NewOutboxWorker(repo, &fakeProducer{}, nil, m)

	worker.Cleanup(context.Background())

	assert.Equal(t, 7.0, testutil.ToFloat64(m.OutboxPending))
}

func TestOutboxWorker_StartStop(t *testing.T) {
	repo := &fakeOutboxRepository{}
	repo.messages = []*domain.OutboxMessage{newOutboxMessage(t, domain.RegistrationEventCreated)}
	producer := &fakeProducer{}
	worker := NewOutboxWorker(repo, producer, &OutboxWorkerConfig{PollInterval: 5 * time.Millisecond}, nil)

	require.NoError(t, worker.Start(context.Background()))
	assert.True(t, worker.IsRunning())
	assert.Error(t, worker.Start(context.Background()))

	assert.Eventually(t, func() bool { return producer.produced() == 1 }, time.Second, 5*time.Millisecond)

	worker.Stop()
	assert.False(t, worker.IsRunning())
	worker.Stop()
}

func TestOutboxWorker_StopInterruptsDrain(t *testing.T) {
	repo := &backlogOutboxRepository{}
	worker := NewOutboxWorker(repo, &fakeProducer{}, &OutboxWorkerConfig{PollInterval: time.Millisecond, BatchSize: 10}, nil)

	require.NoError(t, worker.Start(context.Background()))
	require.Eventually(t, func() bool { return repo.batches.Load() > 3 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked while the backlog stayed full")
	}
}

func TestOutboxWorker_DrainHonoursContext(t *testing.T) {
	repo := &backlogOutboxRepository{}
	worker := NewOutboxWorker(repo, &fakeProducer{}, &OutboxWorkerConfig{BatchSize: 10}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.drain(ctx)

	assert.Equal(t, int64(0), repo.batches.Load())
}
