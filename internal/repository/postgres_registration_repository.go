package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/pkg/database"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

const registrationColumns = `id, user_id, event_id, status, created_at`

// PostgresRegistrationRepository implements RegistrationRepository using
// PostgreSQL. When an outbox is configured every admission and removal
// writes its registration event in the same transaction.
type PostgresRegistrationRepository struct {
	pool       *pgxpool.Pool
	outbox     OutboxRepository
	topic      string
	maxRetries int
}

// NewPostgresRegistrationRepository creates a new PostgresRegistrationRepository.
// outbox may be nil.
func NewPostgresRegistrationRepository(pool *pgxpool.Pool, outbox OutboxRepository, topic string) *PostgresRegistrationRepository {
	return &PostgresRegistrationRepository{pool: pool, outbox: outbox, topic: topic}
}

// WithOutboxMaxRetries sets the publish attempt budget of new outbox messages
func (r *PostgresRegistrationRepository) WithOutboxMaxRetries(n int) *PostgresRegistrationRepository {
	r.maxRetries = n
	return r
}

// Admit locks the event row, counts its active registrations and inserts reg
// in one transaction. The row lock serializes admissions per event, and the
// partial unique index on (user_id, event_id) rejects duplicates.
func (r *PostgresRegistrationRepository) Admit(ctx context.Context, reg *domain.Registration) error {
	if !validUUID(reg.EventID) {
		return domain.ErrEventNotFound
	}

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var capacity int
		err := tx.QueryRow(ctx, `SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, reg.EventID).Scan(&capacity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("failed to lock event: %w", err)
		}

		var count int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
			reg.EventID, domain.RegistrationStatusRegistered.String(),
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}
		if count >= capacity {
			return domain.ErrCapacityExceeded
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO registrations (`+registrationColumns+`) VALUES ($1, $2, $3, $4, $5)`,
			reg.ID, reg.UserID, reg.EventID, reg.Status.String(), reg.CreatedAt,
		)
		if err != nil {
			if isPgError(err, pgUniqueViolation) {
				return domain.ErrDuplicateRegistration
			}
			if isPgError(err, pgForeignKeyViolation) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("failed to insert registration: %w", err)
		}

		return r.writeOutbox(ctx, tx, domain.RegistrationEventCreated, reg)
	})
}

// Remove deletes the user's registration for the event
func (r *PostgresRegistrationRepository) Remove(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
	if !validUUID(eventID) {
		return nil, domain.ErrRegistrationNotFound
	}

	var removed *domain.Registration
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		reg, err := scanRegistration(tx.QueryRow(ctx,
			`DELETE FROM registrations WHERE user_id = $1 AND event_id = $2 RETURNING `+registrationColumns,
			userID, eventID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRegistrationNotFound
			}
			return fmt.Errorf("failed to delete registration: %w", err)
		}
		removed = reg
		return r.writeOutbox(ctx, tx, domain.RegistrationEventCancelled, reg)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// CountByEvent returns the number of active registrations for an event
func (r *PostgresRegistrationRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	if !validUUID(eventID) {
		return 0, nil
	}

	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
		eventID, domain.RegistrationStatusRegistered.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

// ListByUser returns the user's registrations, newest first
func (r *PostgresRegistrationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Registration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	regs := make([]*domain.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}

func (r *PostgresRegistrationRepository) writeOutbox(ctx context.Context, tx pgx.Tx, eventType domain.RegistrationEventType, reg *domain.Registration) error {
	if r.outbox == nil {
		return nil
	}
	msg, err := domain.RegistrationOutboxMessage(domain.NewRegistrationEvent(eventType, reg), r.topic)
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}
	if r.maxRetries > 0 {
		msg.MaxRetries = r.maxRetries
	}
	msg.Headers = telemetry.InjectHeaders(ctx, msg.Headers)
	return r.outbox.CreateTx(ctx, tx, msg)
}

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var (
		reg    domain.Registration
		status string
	)
	if err := row.Scan(&reg.ID, &reg.UserID, &reg.EventID, &status, &reg.CreatedAt); err != nil {
		return nil, err
	}
	reg.Status = domain.RegistrationStatus(status)
	return &reg, nil
}
