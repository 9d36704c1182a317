package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher abstracts the event sink so the relay can be tested without a
// broker.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

// KafkaPublisher delivers outbox messages to a Kafka topic. Message keys are
// the outbox ids so downstream consumers can deduplicate on redelivery.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a Kafka-backed publisher.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	return &KafkaPublisher{writer: writer}
}

// Publish writes a single message.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("outbox: write kafka message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
