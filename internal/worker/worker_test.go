package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/runcache"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeSaver) Save(_ context.Context, r *pipeline.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, r.RunID)
	return nil
}

type fakeAnnouncer struct {
	mu        sync.Mutex
	completed []string
	cached    []bool
	failed    []string
	kinds     []string
}

func (f *fakeAnnouncer) PublishCompleted(_ context.Context, _ *pipeline.Result, batchID string, cached bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, batchID)
	f.cached = append(f.cached, cached)
	return nil
}

func (f *fakeAnnouncer) PublishFailed(_ context.Context, batchID string, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, batchID)
	f.kinds = append(f.kinds, apperrors.Kind(runErr))
	return nil
}

func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	res, err := language.Default()
	require.NoError(t, err)
	params := pipeline.DefaultParams()
	params.K = 2
	params.MinDocumentFrequency = 1
	params.MaxDocumentFrequencyFraction = 1.0
	p, err := pipeline.New(res, params)
	require.NoError(t, err)
	return p
}

func encode(t *testing.T, batch events.ReviewBatch) []byte {
	t.Helper()
	data, err := json.Marshal(batch)
	require.NoError(t, err)
	return data
}

var scenario = []pipeline.Review{
	{Text: "great book loved it"},
	{Text: "book was terrible hated it"},
	{Text: "great story loved characters"},
}

func TestHandleBatch(t *testing.T) {
	saver := &fakeSaver{}
	ann := &fakeAnnouncer{}
	handle := HandleBatch(newPipeline(t), Options{
		Cache:  runcache.New(runcache.NewMemoryBackend(), time.Minute, nil),
		Store:  saver,
		Events: ann,
	})

	batch := events.NewReviewBatch(scenario, nil)
	require.NoError(t, handle(context.Background(), []byte(batch.BatchID), encode(t, batch)))
	require.NoError(t, handle(context.Background(), []byte(batch.BatchID), encode(t, batch)))

	assert.Len(t, saver.saved, 2)
	assert.Equal(t, saver.saved[0], saver.saved[1])
	assert.Equal(t, []string{batch.BatchID, batch.BatchID}, ann.completed)
	assert.Equal(t, []bool{false, true}, ann.cached)
	assert.Empty(t, ann.failed)
}

func TestHandleBatchParamsOverride(t *testing.T) {
	ann := &fakeAnnouncer{}
	handle := HandleBatch(newPipeline(t), Options{Events: ann})

	params := pipeline.DefaultParams()
	params.K = 11
	batch := events.NewReviewBatch(scenario, &params)
	err := handle(context.Background(), nil, encode(t, batch))
	require.Error(t, err)
	assert.True(t, kafka.IsDiscarded(err))
	assert.ErrorIs(t, err, apperrors.ErrInvalidClusterCount)
	assert.Equal(t, []string{"invalid_cluster_count"}, ann.kinds)
}

func TestHandleBatchRejections(t *testing.T) {
	ann := &fakeAnnouncer{}
	handle := HandleBatch(newPipeline(t), Options{Events: ann})

	err := handle(context.Background(), nil, []byte("{not json"))
	assert.True(t, kafka.IsDiscarded(err))
	assert.Empty(t, ann.failed, "undecodable messages have no batch to report")

	batch := events.NewReviewBatch([]pipeline.Review{{Text: "a"}, {Text: "b"}}, nil)
	err = handle(context.Background(), nil, encode(t, batch))
	assert.True(t, kafka.IsDiscarded(err))
	assert.ErrorIs(t, err, apperrors.ErrEmptyVocabulary)

	batch = events.NewReviewBatch([]pipeline.Review{{Text: ""}, {Text: "null"}}, nil)
	err = handle(context.Background(), nil, encode(t, batch))
	assert.True(t, kafka.IsDiscarded(err))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)

	assert.Equal(t, []string{"empty_vocabulary", "insufficient_data"}, ann.kinds)
}

func TestHandleBatchStoreFailureIsRetried(t *testing.T) {
	saver := &fakeSaver{err: errors.New("connection reset")}
	ann := &fakeAnnouncer{}
	handle := HandleBatch(newPipeline(t), Options{
		Store:      saver,
		Events:     ann,
		StoreRetry: resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond},
	})

	batch := events.NewReviewBatch(scenario, nil)
	err := handle(context.Background(), nil, encode(t, batch))
	require.Error(t, err)
	assert.False(t, kafka.IsDiscarded(err))
	assert.Empty(t, ann.completed)
	assert.Empty(t, ann.failed, "retryable failures are announced only once retries run out")
}

func TestAnnounceGiveUp(t *testing.T) {
	ann := &fakeAnnouncer{}
	giveUp := AnnounceGiveUp(ann)

	batch := events.NewReviewBatch(scenario, nil)
	giveUp(context.Background(), nil, encode(t, batch), fmt.Errorf("batch run: %w", apperrors.ErrTimeout))
	giveUp(context.Background(), nil, []byte("{not json"), errors.New("boom"))

	assert.Equal(t, []string{batch.BatchID}, ann.failed)
	assert.Equal(t, []string{"timeout"}, ann.kinds)

	assert.NotPanics(t, func() {
		AnnounceGiveUp(nil)(context.Background(), nil, encode(t, batch), errors.New("boom"))
	})
}

func TestIsRejection(t *testing.T) {
	assert.True(t, isRejection(apperrors.ErrInvalidInput))
	assert.False(t, isRejection(apperrors.ErrTimeout))
	assert.False(t, isRejection(errors.New("boom")))
}
