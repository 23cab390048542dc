package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iho/bondtab/internal/domain"
)

// LogPublisher writes each event as a structured log line. It is the sink
// used when no redis stream is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("sink", "log").Logger()}
}

// Publish logs the event with its JSON payload.
func (p *LogPublisher) Publish(_ context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of %s: %w", event.ID, err)
	}

	withEvent(p.logger.Info(), event).
		Time("created_at", event.CreatedAt).
		RawJSON("payload", payload).
		Msg("event")
	return nil
}
