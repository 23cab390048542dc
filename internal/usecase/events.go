package usecase

import (
	"context"
	"time"

	"github.com/iho/bondtab/internal/domain"
)

// eventLog appends domain events to the outbox inside the caller's transaction.
type eventLog struct {
	outbox OutboxRepository
	idGen  IDGenerator
}

func (l eventLog) append(
	ctx context.Context,
	tx Transaction,
	aggregateType, aggregateID, eventType string,
	payload any,
	at time.Time,
) error {
	data, err := domain.NewPayload(payload)
	if err != nil {
		return err
	}

	event := &domain.OutboxEvent{
		ID:            l.idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     at,
		Published:     false,
	}
	return l.outbox.Create(ctx, tx, event)
}

// observe reports an operation outcome if a recorder is configured.
func observe(rec Recorder, operation string, start time.Time, err error) {
	if rec == nil {
		return
	}
	rec.ObserveOperation(operation, time.Since(start), err)
}
