package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/pkg/database"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, topic, partition_key, headers,
	status, retry_count, max_retries, COALESCE(last_error, ''), created_at, published_at`

// PostgresOutboxRepository implements OutboxRepository using PostgreSQL
type PostgresOutboxRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOutboxRepository creates a new PostgresOutboxRepository
func NewPostgresOutboxRepository(pool *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{pool: pool}
}

// CreateTx stores msg inside tx
func (r *PostgresOutboxRepository) CreateTx(ctx context.Context, tx pgx.Tx, msg *domain.OutboxMessage) error {
	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode outbox headers: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (
			id, aggregate_type, aggregate_id, event_type, payload, topic,
			partition_key, headers, status, retry_count, max_retries, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		msg.ID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.Payload,
		msg.Topic,
		msg.PartitionKey,
		headers,
		msg.Status.String(),
		msg.RetryCount,
		msg.MaxRetries,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// ProcessPending claims pending messages with FOR UPDATE SKIP LOCKED so
// several relays can run side by side.
func (r *PostgresOutboxRepository) ProcessPending(ctx context.Context, limit int, fn func(ctx context.Context, msg *domain.OutboxMessage) error) (int, error) {
	published := 0

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+outboxColumns+`
			FROM outbox
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, domain.OutboxStatusPending.String(), limit)
		if err != nil {
			return fmt.Errorf("failed to claim outbox messages: %w", err)
		}
		messages, err := collectOutbox(rows)
		if err != nil {
			return err
		}

		for _, msg := range messages {
			if pubErr := fn(ctx, msg); pubErr != nil {
				msg.MarkAttemptFailed(pubErr.Error())
			} else {
				msg.MarkAsPublished()
				published++
			}

			_, err := tx.Exec(ctx, `
				UPDATE outbox
				SET status = $2, retry_count = $3, last_error = NULLIF($4, ''), published_at = $5
				WHERE id = $1
			`, msg.ID, msg.Status.String(), msg.RetryCount, msg.LastError, msg.PublishedAt)
			if err != nil {
				return fmt.Errorf("failed to update outbox message %s: %w", msg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// DeletePublishedBefore removes published messages older than before
func (r *PostgresOutboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM outbox WHERE status = $1 AND published_at < $2`,
		domain.OutboxStatusPublished.String(), before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published outbox messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus reports queue depth per status
func (r *PostgresOutboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OutboxStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.OutboxStatus(status)] = n
	}
	return counts, rows.Err()
}

func collectOutbox(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	defer rows.Close()

	var messages []*domain.OutboxMessage
	for rows.Next() {
		var (
			msg     domain.OutboxMessage
			status  string
			headers []byte
		)
		err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Payload,
			&msg.Topic,
			&msg.PartitionKey,
			&headers,
			&status,
			&msg.RetryCount,
			&msg.MaxRetries,
			&msg.LastError,
			&msg.CreatedAt,
			&msg.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.Status = domain.OutboxStatus(status)
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &msg.Headers); err != nil {
				return nil, fmt.Errorf("failed to decode outbox headers: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox messages: %w", err)
	}
	return messages, nil
}
