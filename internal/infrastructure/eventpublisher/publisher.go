package eventpublisher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/clock"
	"github.com/iho/bondtab/internal/usecase"
)

const (
	defaultBatchSize = 100
	defaultInterval  = 5 * time.Second
	// maxCatchUpRounds caps back-to-back drains between two ticks.
	maxCatchUpRounds = 10
)

// Publisher delivers one outbox event to a sink.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// Observer receives publish outcomes. Implemented by the metrics package.
type Observer interface {
	EventPublished(eventType string)
	PublishFailed()
}

// Config for EventPublisher.
type Config struct {
	OutboxRepo usecase.OutboxRepository
	Publisher  Publisher
	Observer   Observer
	Clock      usecase.Clock
	Logger     zerolog.Logger
	BatchSize  int
	Interval   time.Duration
	// Retention is how long published events are kept. Zero keeps them forever.
	Retention time.Duration
}

// EventPublisher drains the outbox into a Publisher. Events of one aggregate
// are delivered in sequence order; a failed event holds back the rest of its
// aggregate until the next drain.
type EventPublisher struct {
	outbox    usecase.OutboxRepository
	sink      Publisher
	observer  Observer
	clock     usecase.Clock
	logger    zerolog.Logger
	batchSize int
	interval  time.Duration
	retention time.Duration
}

// NewEventPublisher creates an EventPublisher, filling zero Config fields
// with defaults.
func NewEventPublisher(cfg Config) *EventPublisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	return &EventPublisher{
		outbox:    cfg.OutboxRepo,
		sink:      cfg.Publisher,
		observer:  cfg.Observer,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With().Str("component", "event_publisher").Logger(),
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		retention: cfg.Retention,
	}
}

// Start drains the outbox on every tick until ctx is cancelled, then returns
// ctx.Err().
func (ep *EventPublisher) Start(ctx context.Context) error {
	ep.logger.Info().
		Int("batch_size", ep.batchSize).
		Dur("interval", ep.interval).
		Dur("retention", ep.retention).
		Msg("event publisher started")

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	for {
		ep.catchUp(ctx)

		select {
		case <-ctx.Done():
			ep.logger.Info().Msg("event publisher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// catchUp drains full batches back to back so a backlog does not wait one
// interval per batch.
func (ep *EventPublisher) catchUp(ctx context.Context) {
	for round := 0; round < maxCatchUpRounds && ctx.Err() == nil; round++ {
		res, err := ep.drain(ctx)
		if err != nil {
			ep.logger.Error().Err(err).Msg("outbox drain failed")
			return
		}
		if res.fetched > 0 {
			ep.logger.Debug().
				Int("fetched", res.fetched).
				Int("published", res.published).
				Int("held_back", res.heldBack).
				Msg("outbox drained")
		}
		if res.fetched < ep.batchSize || res.published == 0 {
			return
		}
	}
}

type drainResult struct {
	fetched   int
	published int
	heldBack  int
}

// drain publishes one batch of unpublished events, then prunes events older
// than the retention window.
func (ep *EventPublisher) drain(ctx context.Context) (drainResult, error) {
	var res drainResult

	events, err := ep.outbox.GetUnpublished(ctx, ep.batchSize)
	if err != nil {
		return res, err
	}
	res.fetched = len(events)

	held := make(map[string]struct{})
	for _, event := range events {
		key := event.AggregateType + "/" + event.AggregateID
		if _, ok := held[key]; ok {
			res.heldBack++
			continue
		}
		if !ep.deliver(ctx, event) {
			held[key] = struct{}{}
			continue
		}
		res.published++
	}

	if ep.retention > 0 {
		if err := ep.outbox.DeletePublished(ctx, ep.clock.Now().Add(-ep.retention)); err != nil {
			return res, err
		}
	}
	return res, nil
}

// deliver publishes and marks one event, reporting whether both succeeded.
func (ep *EventPublisher) deliver(ctx context.Context, event *domain.OutboxEvent) bool {
	if err := ep.sink.Publish(ctx, event); err != nil {
		if ep.observer != nil {
			ep.observer.PublishFailed()
		}
		withEvent(ep.logger.Error().Err(err), event).Msg("publish failed")
		return false
	}

	if err := ep.outbox.MarkPublished(ctx, event.ID, ep.clock.Now()); err != nil {
		// the sink already has it; a redelivery is expected after restart
		withEvent(ep.logger.Error().Err(err), event).Msg("mark published failed")
		return false
	}

	if ep.observer != nil {
		ep.observer.EventPublished(event.EventType)
	}
	return true
}

func withEvent(e *zerolog.Event, event *domain.OutboxEvent) *zerolog.Event {
	return e.
		Str("event_id", event.ID).
		Int64("sequence", event.Sequence).
		Str("event_type", event.EventType).
		Str("aggregate", event.AggregateType+"/"+event.AggregateID)
}
