package memory

import (
	"context"
	"time"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create appends an event and assigns its sequence number.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}
	s := r.store

	s.seq++
	event.Sequence = s.seq
	s.outbox = append(s.outbox, cloneEvent(event))

	t.onRollback(func() {
		s.outbox = s.outbox[:len(s.outbox)-1]
		s.seq--
	})
	return nil
}

// GetUnpublished returns up to limit unpublished events in append order.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.OutboxEvent
	for _, e := range r.store.outbox {
		if e.Published {
			continue
		}
		out = append(out, cloneEvent(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished flags an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, e := range r.store.outbox {
		if e.ID == id {
			at := publishedAt
			e.Published = true
			e.PublishedAt = &at
			return nil
		}
	}
	return nil
}

// GetByAggregate returns the events of one aggregate in append order.
// A non-positive limit returns all of them.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*domain.OutboxEvent
	for _, e := range r.store.outbox {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			matched = append(matched, e)
		}
	}

	items := page(matched, limit, offset)
	out := make([]*domain.OutboxEvent, 0, len(items))
	for _, e := range items {
		out = append(out, cloneEvent(e))
	}
	return out, nil
}

// DeletePublished drops published events created before the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.outbox[:0]
	for _, e := range r.store.outbox {
		if e.Published && e.CreatedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	r.store.outbox = kept
	return nil
}
