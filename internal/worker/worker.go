// Package worker runs the theme pipeline for review batches read from
// Kafka, stores each result and announces the outcome on the theme-runs
// topic.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/runcache"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/kafka"
	pkglogger "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

// Saver persists a completed run. *store.RunStore implements it.
type Saver interface {
	Save(ctx context.Context, result *pipeline.Result) error
}

// Announcer publishes run outcomes. *events.Publisher implements it.
type Announcer interface {
	PublishCompleted(ctx context.Context, result *pipeline.Result, batchID string, cached bool) error
	PublishFailed(ctx context.Context, batchID string, runErr error) error
}

// Options holds the optional collaborators of a batch handler.
type Options struct {
	Cache      *runcache.Cache
	Store      Saver
	Events     Announcer
	RunTimeout time.Duration
	StoreRetry resilience.RetryConfig
}

// BatchConsumer drives HandleBatch from a Kafka consumer.
type BatchConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewBatchConsumer wraps c, whose handler should come from HandleBatch.
func NewBatchConsumer(c *kafka.Consumer) *BatchConsumer {
	return &BatchConsumer{
		consumer: c,
		logger:   slog.Default().With("component", "batch-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (bc *BatchConsumer) Start(ctx context.Context) error {
	bc.logger.Info("batch consumer starting")
	return bc.consumer.Start(ctx)
}

// HandleBatch returns a MessageHandler that clusters one ReviewBatch per
// message. Undecodable messages and batches the pipeline rejects are
// discarded, the rejections after a run.failed event. Storage and timeout
// failures are returned unannounced so the consumer can retry them; see
// AnnounceGiveUp for the failure event once retries run out.
func HandleBatch(p *pipeline.Pipeline, opts Options) kafka.MessageHandler {
	logger := slog.Default().With("component", "batch-worker")
	return func(ctx context.Context, key []byte, value []byte) error {
		batch, err := events.DecodeBatch(value)
		if err != nil {
			logger.Error("failed to decode review batch", "error", err, "key", string(key))
			return kafka.Discard(err)
		}
		ctx = pkglogger.WithFields(ctx, "batch_id", batch.BatchID)
		log := pkglogger.Annotate(logger, ctx).With("reviews", len(batch.Reviews))
		log.Debug("processing review batch")

		result, cached, err := runBatch(ctx, p, batch, opts)
		if err != nil {
			log.Warn("batch run failed", "error", err, "kind", apperrors.Kind(err))
			if !isRejection(err) {
				return fmt.Errorf("running batch %s: %w", batch.BatchID, err)
			}
			announceFailure(ctx, log, opts.Events, batch.BatchID, err)
			return kafka.Discard(err)
		}

		if opts.Store != nil {
			err := resilience.Retry(ctx, "save run", opts.StoreRetry, func() error {
				return opts.Store.Save(ctx, result)
			})
			if err != nil {
				return fmt.Errorf("storing run %s for batch %s: %w", result.RunID, batch.BatchID, err)
			}
		}
		if opts.Events != nil {
			if err := opts.Events.PublishCompleted(ctx, result, batch.BatchID, cached); err != nil {
				log.Error("announcing run failed", "run_id", result.RunID, "error", err)
			}
		}
		log.Info("batch clustered",
			"run_id", result.RunID,
			"strategy", result.Params.Strategy,
			"k", result.Params.K,
			"cached", cached,
		)
		return nil
	}
}

// AnnounceGiveUp returns a GiveUpHandler that publishes run.failed for a
// batch whose retries are exhausted.
func AnnounceGiveUp(announcer Announcer) kafka.GiveUpHandler {
	logger := slog.Default().With("component", "batch-worker")
	return func(ctx context.Context, _ []byte, value []byte, err error) {
		batch, decodeErr := events.DecodeBatch(value)
		if decodeErr != nil {
			return
		}
		ctx = pkglogger.WithFields(ctx, "batch_id", batch.BatchID)
		announceFailure(ctx, pkglogger.Annotate(logger, ctx), announcer, batch.BatchID, err)
	}
}

func announceFailure(ctx context.Context, log *slog.Logger, announcer Announcer, batchID string, err error) {
	if announcer == nil {
		return
	}
	if pubErr := announcer.PublishFailed(ctx, batchID, err); pubErr != nil {
		log.Error("announcing failure failed", "error", pubErr)
	}
}

func runBatch(ctx context.Context, p *pipeline.Pipeline, batch events.ReviewBatch, opts Options) (*pipeline.Result, bool, error) {
	run := p
	if batch.Params != nil {
		var err error
		if run, err = p.WithParams(*batch.Params); err != nil {
			return nil, false, err
		}
	}
	compute := func() (*pipeline.Result, error) {
		return resilience.Timed(ctx, opts.RunTimeout, "batch run", func(ctx context.Context) (*pipeline.Result, error) {
			return run.Run(ctx, batch.Reviews)
		})
	}
	if opts.Cache == nil {
		result, err := compute()
		return result, false, err
	}
	return opts.Cache.GetOrCompute(ctx, runcache.Key(batch.Reviews, run.Params()), compute)
}

// isRejection reports failures that would repeat on redelivery.
func isRejection(err error) bool {
	for _, target := range []error{
		apperrors.ErrInvalidInput,
		apperrors.ErrInvalidClusterCount,
		apperrors.ErrEmptyVocabulary,
		apperrors.ErrInsufficientData,
		apperrors.ErrResourceUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
