package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

const requestIDHeader = "x-request-id"

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON-encoded events to one topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// encode builds the message for event, carrying the request id of ctx in
// a header so consumers can log against it.
func encode(ctx context.Context, event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event value: %w", err)
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: value}
	if id := logger.RequestID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: requestIDHeader, Value: []byte(id)})
	}
	return msg, nil
}

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in a single call. Either all are acknowledged
// or an error is returned.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := encode(ctx, event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish",
			"count", len(messages),
			"error", err,
		)
		return fmt.Errorf("publishing %d messages to kafka: %w", len(messages), err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
