package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes step events keyed by product id so that all events of
// one product land on the same partition in recording order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaPublisher(writer messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, log: log.Named("events.kafka")}
}

func (p *KafkaPublisher) PublishStepRecorded(ctx context.Context, event StepRecorded) error {
	payload, err := event.encode()
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.ProductID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventStepRecorded)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", EventStepRecorded, p.topic, err)
	}
	p.log.Debug("step event published",
		zap.String("topic", p.topic),
		zap.String("product_id", event.ProductID),
		zap.Uint64("sequence", event.Sequence),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
