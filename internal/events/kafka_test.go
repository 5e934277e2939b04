package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByProduct(t *testing.T) {
	w := &recordingWriter{}
	pub := NewKafkaPublisher(w, "supplychain.step.recorded", zap.NewNop())

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := pub.PublishStepRecorded(context.Background(), StepRecorded{
		StepID:     "42",
		ProductID:  "p-1",
		Stage:      "shipping",
		StageLabel: "Shipping",
		Location:   "Rotterdam",
		Sequence:   7,
		TxHash:     "0xabc",
		RecordedAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "p-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventStepRecorded, string(msg.Headers[0].Value))

	var decoded StepRecorded
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, EventStepRecorded, decoded.Type)
	assert.Equal(t, uint64(7), decoded.Sequence)
	assert.Equal(t, "Rotterdam", decoded.Location)
	assert.True(t, at.Equal(decoded.RecordedAt))

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	cause := errors.New("broker down")
	pub := NewKafkaPublisher(&recordingWriter{err: cause}, "t", zap.NewNop())

	err := pub.PublishStepRecorded(context.Background(), StepRecorded{ProductID: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NewNoopPublisher().PublishStepRecorded(context.Background(), StepRecorded{}))
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"k1:9092", "k2:9092"}, "topic")
	assert.Equal(t, "topic", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
}
