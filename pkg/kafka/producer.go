package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/config"
)

// Event is the unit of data published to Kafka. Events sharing a Key land on
// the same partition and are consumed in publish order. Value is
// JSON-serialised.
type Event struct {
	Key   string
	Value any
}

const maxBatchMessages = 100

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    maxBatchMessages,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises a single event and writes it to Kafka synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("marshaling event value: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message",
			"key", event.Key,
			"error", err,
		)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("message published",
		"key", event.Key,
		"value_size", len(value),
	)
	return nil
}

// PublishBatch writes events in chunks of at most maxBatchMessages. On
// error the events of earlier chunks have already been written.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	for start := 0; start < len(events); start += maxBatchMessages {
		end := min(start+maxBatchMessages, len(events))
		messages := make([]kafka.Message, 0, end-start)
		for _, event := range events[start:end] {
			value, err := json.Marshal(event.Value)
			if err != nil {
				return fmt.Errorf("marshaling event value for key %s: %w", event.Key, err)
			}
			messages = append(messages, kafka.Message{
				Key:   []byte(event.Key),
				Value: value,
			})
		}
		if err := p.writer.WriteMessages(ctx, messages...); err != nil {
			p.logger.Error("failed to publish batch",
				"offset", start,
				"count", len(messages),
				"error", err,
			)
			return fmt.Errorf("publishing batch to kafka (%d of %d written): %w", start, len(events), err)
		}
	}
	p.logger.Debug("batch published", "count", len(events))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
