// Package events defines the Kafka messages exchanged by the theme
// services and publishes them with retry.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

const (
	TypeReviewBatch  = "review.batch"
	TypeRunCompleted = "run.completed"
	TypeRunFailed    = "run.failed"
)

// ReviewBatch asks a worker to cluster reviews. Nil Params selects the
// worker's configured defaults.
type ReviewBatch struct {
	BatchID     string            `json:"batch_id"`
	Reviews     []pipeline.Review `json:"reviews"`
	Params      *pipeline.Params  `json:"params,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// NewReviewBatch stamps reviews with a fresh batch id.
func NewReviewBatch(reviews []pipeline.Review, params *pipeline.Params) ReviewBatch {
	return ReviewBatch{
		BatchID:     uuid.NewString(),
		Reviews:     reviews,
		Params:      params,
		SubmittedAt: time.Now().UTC(),
	}
}

// RunCompletedEvent announces a stored run.
type RunCompletedEvent struct {
	RunID       string    `json:"run_id"`
	BatchID     string    `json:"batch_id,omitempty"`
	Strategy    string    `json:"strategy"`
	K           int       `json:"k"`
	Documents   int       `json:"documents"`
	Labels      []string  `json:"labels"`
	Sizes       []int     `json:"sizes"`
	Cached      bool      `json:"cached"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunFailedEvent announces a batch that will not produce a run.
type RunFailedEvent struct {
	BatchID  string    `json:"batch_id"`
	Error    string    `json:"error"`
	Kind     string    `json:"kind"`
	FailedAt time.Time `json:"failed_at"`
}

// Completed summarizes result for downstream consumers.
func Completed(result *pipeline.Result, batchID string, cached bool) RunCompletedEvent {
	sizes := make([]int, len(result.Clusters))
	for i, c := range result.Clusters {
		sizes[i] = c.Size
	}
	return RunCompletedEvent{
		RunID:       result.RunID,
		BatchID:     batchID,
		Strategy:    result.Params.Strategy,
		K:           result.Params.K,
		Documents:   len(result.Documents),
		Labels:      result.Labels(),
		Sizes:       sizes,
		Cached:      cached,
		CompletedAt: time.Now().UTC(),
	}
}

// Failed describes err for batchID with its error kind.
func Failed(batchID string, err error) RunFailedEvent {
	return RunFailedEvent{
		BatchID:  batchID,
		Error:    err.Error(),
		Kind:     apperrors.Kind(err),
		FailedAt: time.Now().UTC(),
	}
}

// Sink writes one event. *kafka.Producer implements it.
type Sink interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Observer is told the outcome of every publish. *metrics.Metrics
// implements it.
type Observer interface {
	EventPublished(eventType string, err error)
}

// Publisher sends run events with retry.
type Publisher struct {
	sink     Sink
	retry    resilience.RetryConfig
	observer Observer
	logger   *slog.Logger
}

// NewPublisher wraps sink with retry. observer may be nil.
func NewPublisher(sink Sink, retry resilience.RetryConfig, observer Observer) *Publisher {
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	return &Publisher{
		sink:     sink,
		retry:    retry,
		observer: observer,
		logger:   slog.Default().With("component", "event-publisher"),
	}
}

// PublishCompleted sends a RunCompletedEvent for result.
func (p *Publisher) PublishCompleted(ctx context.Context, result *pipeline.Result, batchID string, cached bool) error {
	return p.publish(ctx, kafka.Event{Key: result.RunID, Type: TypeRunCompleted, Value: Completed(result, batchID, cached)})
}

// PublishFailed sends a RunFailedEvent for batchID.
func (p *Publisher) PublishFailed(ctx context.Context, batchID string, runErr error) error {
	return p.publish(ctx, kafka.Event{Key: batchID, Type: TypeRunFailed, Value: Failed(batchID, runErr)})
}

// PublishBatch submits batch for the worker.
func (p *Publisher) PublishBatch(ctx context.Context, batch ReviewBatch) error {
	return p.publish(ctx, kafka.Event{Key: batch.BatchID, Type: TypeReviewBatch, Value: batch})
}

func (p *Publisher) publish(ctx context.Context, event kafka.Event) error {
	err := resilience.Retry(ctx, "publish "+event.Type, p.retry, func() error {
		return p.sink.Publish(ctx, event)
	})
	if p.observer != nil {
		p.observer.EventPublished(event.Type, err)
	}
	if err != nil {
		p.logger.Error("event publish failed", "type", event.Type, "key", event.Key, "error", err)
		return fmt.Errorf("publishing %s event: %w", event.Type, err)
	}
	p.logger.Debug("event published", "type", event.Type, "key", event.Key)
	return nil
}

// DecodeBatch parses a review-batches message.
func DecodeBatch(value []byte) (ReviewBatch, error) {
	batch, err := kafka.DecodeJSON[ReviewBatch](value)
	if err != nil {
		return batch, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}
	return batch, nil
}
