package eventpublisher

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/domain"
)

func TestLogPublisherWritesPayload(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	err := p.Publish(context.Background(), &domain.OutboxEvent{
		ID:            "evt-1",
		Sequence:      7,
		AggregateType: "group",
		AggregateID:   "0xabc",
		EventType:     domain.EventTypeBondDeposited,
		Payload:       map[string]any{"amount": "50"},
	})
	require.NoError(t, err)

	line := buf.String()
	assert.Contains(t, line, `"payload":{"amount":"50"}`)
	assert.Contains(t, line, `"aggregate":"group/0xabc"`)
	assert.Contains(t, line, `"sequence":7`)
	assert.Contains(t, line, `"sink":"log"`)
}

func TestLogPublisherRejectsUnencodablePayload(t *testing.T) {
	p := NewLogPublisher(zerolog.Nop())
	err := p.Publish(context.Background(), &domain.OutboxEvent{
		ID:      "evt-1",
		Payload: map[string]any{"bad": make(chan int)},
	})
	assert.Error(t, err)
}
