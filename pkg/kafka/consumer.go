// Package kafka moves geocoder events over Kafka with segmentio/kafka-go:
// feature ingest, index flush announcements, cache invalidations and query
// analytics. Values are JSON on the wire.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/resilience"
)

// MessageHandler processes one message. Errors wrapping
// apperrors.ErrInvalidInput skip the message; other errors are retried.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic in a consumer group and hands each message to a
// MessageHandler. Every fetched message is committed once handled, skipped
// or given up on, so one bad event never stalls its partition.
type Consumer struct {
	reader  messageReader
	topic   string
	handler MessageHandler
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type consumerOptions struct {
	startOffset int64
	retry       resilience.RetryConfig
	metrics     *metrics.Metrics
}

// ConsumerOption adjusts a Consumer.
type ConsumerOption func(*consumerOptions)

// FromFirstOffset makes a group with no committed offset start at the
// beginning of the topic instead of its end. Feature ingest uses it so a
// new indexer catches up on everything published before it joined.
func FromFirstOffset() ConsumerOption {
	return func(o *consumerOptions) { o.startOffset = kafka.FirstOffset }
}

// WithRetry replaces the backoff used for failing handlers.
func WithRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

// WithMetrics counts messages per topic and outcome.
func WithMetrics(m *metrics.Metrics) ConsumerOption {
	return func(o *consumerOptions) { o.metrics = m }
}

// NewConsumer creates a Consumer for topic in the configured group.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{
		startOffset: kafka.LastOffset,
		retry:       resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: o.startOffset,
	})
	return newConsumer(r, topic, handler, o)
}

func newConsumer(r messageReader, topic string, handler MessageHandler, o consumerOptions) *Consumer {
	retry := o.retry
	retry.Retryable = retryable
	return &Consumer{
		reader:  r,
		topic:   topic,
		handler: handler,
		retry:   retry,
		metrics: o.metrics,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if !c.process(ctx, msg) {
			return nil
		}
	}
}

// process handles and commits msg. It returns false when ctx ended first,
// leaving msg uncommitted for the next member of the group.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

	err := resilience.Retry(ctx, "handle "+c.topic, c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	outcome := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		log.Info("handler interrupted", "error", err)
		return false
	case errors.Is(err, apperrors.ErrInvalidInput):
		outcome = "skipped"
		log.Warn("skipping invalid message", "key", string(msg.Key), "error", err)
	default:
		outcome = "dropped"
		log.Error("dropping message after retries", "key", string(msg.Key), "error", err)
	}
	if c.metrics != nil {
		c.metrics.KafkaMessagesTotal.WithLabelValues(c.topic, outcome).Inc()
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Error("failed to commit message", "error", err)
	}
	return true
}

func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Close closes the reader. Start also closes it on return.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Failures wrap
// apperrors.ErrInvalidInput so the consumer skips the message.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: decoding kafka message: %w", apperrors.ErrInvalidInput, err)
	}
	return result, nil
}
