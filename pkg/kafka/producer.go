package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
)

const (
	// TypeHeader carries Event.Type on every published message.
	TypeHeader = "event-type"
	// RequestIDHeader carries the id of the HTTP request that caused the
	// event so consumers can log under it.
	RequestIDHeader = "request-id"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Type  string
	Value any
}

func (e Event) message(ctx context.Context) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s event value: %w", e.Type, err)
	}
	msg := kafka.Message{Key: []byte(e.Key), Value: value}
	if e.Type != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: TypeHeader, Value: []byte(e.Type)})
	}
	if id := logger.RequestID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: RequestIDHeader, Value: []byte(id)})
	}
	return msg, nil
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a synchronous Producer for topic. Review batches can
// be large, so messages are snappy-compressed and written one per request.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchBytes:   16 << 20,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event and waits for every in-sync replica to ack it.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := event.message(ctx)
	if err != nil {
		return err
	}
	log := logger.Annotate(p.logger, ctx).With("key", event.Key, "type", event.Type)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error("failed to publish event", "error", err)
		return fmt.Errorf("publishing %s to %s: %w", event.Type, p.writer.Topic, err)
	}
	log.Debug("event published", "value_size", len(msg.Value))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
