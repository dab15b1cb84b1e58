// Package kafka carries review batches and run events over segmentio/kafka-go.
// The producer serialises events as JSON with a type header; the consumer
// hands each message to a MessageHandler and commits it once handled.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

// MessageHandler is invoked for each Kafka message. Returning an error
// leaves the message uncommitted unless the error is wrapped by Discard.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type discardError struct{ err error }

func (d *discardError) Error() string { return d.err.Error() }
func (d *discardError) Unwrap() error { return d.err }

// Discard marks a message as unprocessable: the failure is logged and the
// offset committed so the message is not redelivered.
func Discard(err error) error {
	if err == nil {
		return nil
	}
	return &discardError{err: err}
}

// IsDiscarded reports whether err was wrapped by Discard.
func IsDiscarded(err error) bool {
	var discard *discardError
	return errors.As(err, &discard)
}

// GiveUpHandler is told about a message whose handler failed on every
// retry. The message is left uncommitted.
type GiveUpHandler func(ctx context.Context, key []byte, value []byte, err error)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds a topic's messages to a MessageHandler one at a time and
// commits each offset after the handler succeeds or discards it.
//
// A failing handler is retried with backoff on the same message. Once the
// retries run out the message is left uncommitted and consumption moves
// on; it is redelivered after the next rebalance or restart unless a later
// offset on its partition is committed first.
type Consumer struct {
	reader       messageReader
	handler      MessageHandler
	retry        resilience.RetryConfig
	fetchBackoff time.Duration
	onGiveUp     GiveUpHandler
	logger       *slog.Logger
}

// NewConsumer reads topic as part of the configured consumer group,
// committing offsets explicitly.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       32 << 20,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     15 * time.Second,
			Retryable:    func(err error) bool { return !IsDiscarded(err) },
		},
		fetchBackoff: time.Second,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// OnGiveUp registers fn to run when a message exhausts its retries. It is
// not called when retrying stops because ctx was cancelled. Call before
// Start.
func (c *Consumer) OnGiveUp(fn GiveUpHandler) *Consumer {
	c.onGiveUp = fn
	return c
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "backoff", c.fetchBackoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.fetchBackoff):
			}
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	msgCtx := messageContext(ctx, msg)
	log := logger.Annotate(c.logger, msgCtx)
	log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

	err := resilience.Retry(msgCtx, "handle message", c.retry, func() error {
		return c.handler(msgCtx, msg.Key, msg.Value)
	})
	switch {
	case err == nil:
	case IsDiscarded(err):
		log.Warn("discarding message", "error", err)
	default:
		log.Error("message left uncommitted", "error", err)
		if c.onGiveUp != nil && ctx.Err() == nil {
			c.onGiveUp(msgCtx, msg.Key, msg.Value, err)
		}
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error("failed to commit message", "error", err)
	}
}

// messageContext carries the producer's request id and the message
// coordinates into the handler's logs.
func messageContext(ctx context.Context, msg kafka.Message) context.Context {
	for _, h := range msg.Headers {
		if h.Key == RequestIDHeader && len(h.Value) > 0 {
			ctx = logger.WithRequestID(ctx, string(h.Value))
		}
	}
	return logger.WithFields(ctx, "partition", msg.Partition, "offset", msg.Offset)
}

// Ping dials brokers in order and succeeds on the first that answers.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka unreachable: %w", &net.AddrError{Err: "no brokers configured"})
	}
	dialer := &kafka.Dialer{Timeout: 3 * time.Second}
	var errs []error
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka unreachable: %w", errors.Join(errs...))
}

// Pinger adapts Ping to the health checker.
type Pinger []string

// Ping dials the brokers.
func (p Pinger) Ping(ctx context.Context) error { return Ping(ctx, p) }

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
