// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer decodes them via a pluggable MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/resilience"
)

const fetchErrorBackoff = time.Second

// MessageHandler is a callback invoked for each Kafka message. A message is
// committed only once its handler returns nil; failures are retried with
// backoff on the same message, so later messages of the partition wait.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithHandlerRetry sets the backoff used while a message keeps failing.
// MaxDelay also separates consecutive rounds of MaxAttempts.
func WithHandlerRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(c *Consumer) {
		c.retry = cfg
	}
}

// NewConsumer creates a Consumer for the given topic, consumer group and
// handler.
func NewConsumer(cfg config.KafkaConfig, topic, groupID string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	return newConsumer(kafka.NewReader(readerConfig(cfg, topic, groupID)), topic, groupID, handler, opts...)
}

// readerConfig starts a group without committed offsets at the oldest
// retained message, so a fresh group replays history instead of skipping it.
func readerConfig(cfg config.KafkaConfig, topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	}
}

func newConsumer(r messageReader, topic, groupID string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", groupID),
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
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
			select {
			case <-time.After(fetchErrorBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if !c.process(ctx, msg) {
			c.logger.Info("consumer stopping with message uncommitted",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"reason", ctx.Err(),
			)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler on msg until it succeeds. It returns false only
// when ctx ends first.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	for {
		err := resilience.Retry(ctx, "kafka-handle-message", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("message still failing, backing off",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		select {
		case <-time.After(c.retry.MaxDelay):
		case <-ctx.Done():
			return false
		}
	}
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
