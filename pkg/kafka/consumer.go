package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers  []string
	ClientID string
	GroupID  string
	Topics   []string
	// FromBeginning starts a fresh group at the earliest offset
	FromBeginning bool
}

// Handler processes one record. Returning an error stops consumption.
type Handler func(ctx context.Context, msg *Message) error

// Consumer reads records from a consumer group
type Consumer struct {
	client *kgo.Client
}

// NewConsumer joins the configured group
func NewConsumer(ctx context.Context, cfg *ConsumerConfig) (*Consumer, error) {
	if len(cfg.Topics) == 0 {
		return nil, errors.New("kafka: no topics configured")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
	}
	if cfg.FromBeginning {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping kafka: %w", err)
	}
	return &Consumer{client: client}, nil
}

// Run polls until ctx is done or handle fails
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}

		var fetchErr error
		fetches.EachError(func(topic string, partition int32, err error) {
			if fetchErr == nil && !errors.Is(err, context.Canceled) {
				fetchErr = fmt.Errorf("fetch %s[%d]: %w", topic, partition, err)
			}
		})
		if fetchErr != nil {
			return fetchErr
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			msg := &Message{
				Topic:     rec.Topic,
				Key:       rec.Key,
				Value:     rec.Value,
				Headers:   HeadersOf(rec),
				Timestamp: rec.Timestamp,
			}
			if err := handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// Close leaves the group and closes the client
func (c *Consumer) Close() {
	c.client.Close()
}
