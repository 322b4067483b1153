// Package kafka provides JSON event producers and consumers backed by
// segmentio/kafka-go. Consumers hand messages to a Handler and commit
// offsets only after the handler has flushed, so a crash replays whatever
// was not yet durable.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

// Message is a consumed record.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
	RequestID string
}

// Context returns ctx carrying the message's request id, if any.
func (m Message) Context(ctx context.Context) context.Context {
	if m.RequestID == "" {
		return ctx
	}
	return logger.WithRequestID(ctx, m.RequestID)
}

// Handler processes messages. Flush makes the effects of every message
// handled so far durable; offsets are committed only after it succeeds.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
	Flush(ctx context.Context) error
}

// HandlerFunc adapts a function to a Handler whose effects are durable as
// soon as it returns.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

func (HandlerFunc) Flush(context.Context) error { return nil }

// ConsumerOptions tune when a Consumer flushes. A flush happens every
// FlushInterval and whenever MaxPending messages are unflushed.
type ConsumerOptions struct {
	GroupID       string
	FlushInterval time.Duration
	MaxPending    int
	// StartAtLatest skips history when the group has no committed offset.
	StartAtLatest bool
}

type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	opts    ConsumerOptions
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler Handler, opts ConsumerOptions) *Consumer {
	if opts.GroupID == "" {
		opts.GroupID = cfg.ConsumerGroup
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 1000
	}
	start := kafka.FirstOffset
	if opts.StartAtLatest {
		start = kafka.LastOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     opts.GroupID,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: start,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		opts:    opts,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", opts.GroupID),
	}
}

// Start consumes until ctx is cancelled, then flushes, commits what was
// flushed and closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	fetched := make(chan kafka.Message)
	fetchErr := make(chan error, 1)
	go func() {
		defer close(fetched)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				fetchErr <- err
				return
			}
			select {
			case fetched <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()
	var pending []kafka.Message

	for {
		select {
		case msg, ok := <-fetched:
			if !ok {
				c.shutdown(pending)
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("fetching from kafka: %w", <-fetchErr)
			}
			c.handle(ctx, msg)
			pending = append(pending, msg)
			if len(pending) >= c.opts.MaxPending {
				pending = c.flush(ctx, pending)
			}
		case <-ticker.C:
			pending = c.flush(ctx, pending)
		case <-ctx.Done():
			c.shutdown(pending)
			return nil
		}
	}
}

// handle passes msg to the handler. A message the handler rejects is
// logged and skipped; the handler is expected to record the failure.
func (c *Consumer) handle(ctx context.Context, km kafka.Message) {
	msg := Message{
		Key:       km.Key,
		Value:     km.Value,
		Partition: km.Partition,
		Offset:    km.Offset,
		Time:      km.Time,
	}
	for _, h := range km.Headers {
		if h.Key == requestIDHeader {
			msg.RequestID = string(h.Value)
		}
	}
	c.logger.Debug("message received",
		"partition", km.Partition,
		"offset", km.Offset,
		"key", string(km.Key),
		"value_size", len(km.Value),
	)
	if err := c.handler.Handle(msg.Context(ctx), msg); err != nil {
		logger.FromContext(msg.Context(ctx)).Error("failed to process message",
			"topic", km.Topic,
			"partition", km.Partition,
			"offset", km.Offset,
			"error", err,
		)
	}
}

// flush makes pending durable and commits its offsets. On failure the
// messages stay pending and are retried at the next flush.
func (c *Consumer) flush(ctx context.Context, pending []kafka.Message) []kafka.Message {
	if len(pending) == 0 {
		return pending
	}
	if err := c.handler.Flush(ctx); err != nil {
		c.logger.Error("flush failed", "pending", len(pending), "error", err)
		return pending
	}
	if err := c.reader.CommitMessages(ctx, pending...); err != nil {
		c.logger.Error("failed to commit offsets", "count", len(pending), "error", err)
		return pending
	}
	return pending[:0]
}

func (c *Consumer) shutdown(pending []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if rest := c.flush(ctx, pending); len(rest) > 0 {
		c.logger.Warn("offsets left uncommitted at shutdown", "count", len(rest))
	}
	if err := c.reader.Close(); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("closing reader", "error", err)
	}
	c.logger.Info("consumer stopped")
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
