package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig()

	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, int32(1<<20), cfg.BatchMaxBytes)
}

func TestNewProducer_NoBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), &ProducerConfig{})
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestNewProducer_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewProducer(ctx, &ProducerConfig{
		Brokers:       []string{"127.0.0.1:1"},
		MaxRetries:    2,
		RetryInterval: 50 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	record := toRecord(&Message{
		Topic:     "booking.confirmed",
		Key:       []byte("b-1"),
		Value:     []byte(`{"ok":true}`),
		Headers:   map[string]string{"event_type": "booking.confirmed"},
		Timestamp: ts,
	})

	assert.Equal(t, "booking.confirmed", record.Topic)
	assert.Equal(t, []byte("b-1"), record.Key)
	assert.Equal(t, ts, record.Timestamp)
	require.Len(t, record.Headers, 1)
	assert.Equal(t, "event_type", record.Headers[0].Key)
	assert.Equal(t, []byte("booking.confirmed"), record.Headers[0].Value)
}

func TestToRecord_DefaultTimestamp(t *testing.T) {
	record := toRecord(&Message{Topic: "t"})
	assert.False(t, record.Timestamp.IsZero())
	assert.Empty(t, record.Headers)
}
