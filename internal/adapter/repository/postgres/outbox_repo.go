package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

const outboxColumns = `seq, id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at`

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create appends an event within a transaction and assigns its sequence.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	const query = `INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`
	err = q.QueryRow(ctx, query,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		event.CreatedAt,
		event.Published,
	).Scan(&event.Sequence)
	if err != nil {
		return fmt.Errorf("postgres: insert outbox event: %w", err)
	}
	return nil
}

// GetUnpublished retrieves unpublished events in append order.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	const query = `SELECT ` + outboxColumns + ` FROM outbox_events WHERE NOT published ORDER BY seq LIMIT $1`
	return r.query(ctx, query, pgLimit(limit))
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	const query = `UPDATE outbox_events SET published = TRUE, published_at = $2 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, publishedAt); err != nil {
		return fmt.Errorf("postgres: mark event published: %w", err)
	}
	return nil
}

// GetByAggregate retrieves events for a specific aggregate in append order.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	const query = `SELECT ` + outboxColumns + ` FROM outbox_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY seq LIMIT $3 OFFSET $4`
	return r.query(ctx, query, aggregateType, aggregateID, pgLimit(limit), offset)
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM outbox_events WHERE published AND created_at < $1`, before); err != nil {
		return fmt.Errorf("postgres: delete published events: %w", err)
	}
	return nil
}

func (r *OutboxRepository) query(ctx context.Context, query string, args ...any) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query outbox: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var (
		payload     []byte
		publishedAt pgtype.Timestamptz
		e           domain.OutboxEvent
	)
	err := row.Scan(
		&e.Sequence,
		&e.ID,
		&e.AggregateID,
		&e.AggregateType,
		&e.EventType,
		&payload,
		&e.CreatedAt,
		&e.Published,
		&publishedAt,
	)
	if err != nil {
		return nil, err
	}

	if payload != nil {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", e.ID, err)
		}
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.PublishedAt = timePtr(publishedAt)
	return &e, nil
}
