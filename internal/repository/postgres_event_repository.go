package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/event-registration/internal/domain"
)

const eventColumns = `id, name, description, date, location, category, capacity, organizer, created_at, updated_at`

// PostgresEventRepository implements EventRepository using PostgreSQL
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// Create stores a new event
func (r *PostgresEventRepository) Create(ctx context.Context, event *domain.Event) error {
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Name,
		event.Description,
		event.Date,
		event.Location,
		event.Category,
		event.Capacity,
		event.Organizer,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return domain.ErrEventAlreadyExists
		}
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if !validUUID(id) {
		return nil, domain.ErrEventNotFound
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	event, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// List returns events matching filter ordered by date
func (r *PostgresEventRepository) List(ctx context.Context, filter *EventFilter) ([]*domain.Event, error) {
	if filter == nil {
		filter = &EventFilter{}
	}

	var (
		conds []string
		args  []interface{}
	)
	addCond := func(format string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if filter.Search != "" {
		addCond("strpos(lower(name), lower($%d)) > 0", filter.Search)
	}
	if filter.Category != "" {
		addCond("strpos(lower(category), lower($%d)) > 0", filter.Category)
	}
	if filter.Location != "" {
		addCond("strpos(lower(location), lower($%d)) > 0", filter.Location)
	}
	if filter.From != nil {
		addCond("date >= $%d", *filter.From)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + eventColumns + ` FROM events`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY date ASC, id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// DeleteAll removes every event. Registrations cascade.
func (r *PostgresEventRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Description,
		&e.Date,
		&e.Location,
		&e.Category,
		&e.Capacity,
		&e.Organizer,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
