package eventpublisher

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/domain"
)

func TestStreamPublisherAppendsEntry(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := NewStreamPublisher(client, "bondtab:events", 1000)
	event := &domain.OutboxEvent{
		ID:            "01HZX",
		Sequence:      3,
		AggregateType: domain.AggregateTypeGroup,
		AggregateID:   "0xabc",
		EventType:     domain.EventTypeExpenseProposed,
		Payload:       map[string]any{"expense_id": 0},
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	entries, err := client.XRange(context.Background(), "bondtab:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	v := entries[0].Values
	assert.Equal(t, "01HZX", v["id"])
	assert.Equal(t, "3", v["sequence"])
	assert.Equal(t, domain.EventTypeExpenseProposed, v["event_type"])
	assert.JSONEq(t, `{"expense_id":0}`, v["payload"].(string))
	assert.Equal(t, "2026-03-01T12:00:00Z", v["created_at"])
}

func TestStreamPublisherServerDown(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	s.Close()

	err := NewStreamPublisher(client, "bondtab:events", 0).Publish(context.Background(), &domain.OutboxEvent{ID: "x"})
	assert.Error(t, err)
}
