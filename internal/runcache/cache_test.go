package runcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

type countingObserver struct {
	hits, misses atomic.Int64
}

func (o *countingObserver) CacheHit()  { o.hits.Add(1) }
func (o *countingObserver) CacheMiss() { o.misses.Add(1) }

type failingBackend struct{ calls atomic.Int64 }

func (f *failingBackend) Get(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func (f *failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	f.calls.Add(1)
	return errors.New("connection refused")
}

func (f *failingBackend) FlushByPattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func sampleResult(id string) *pipeline.Result {
	return &pipeline.Result{
		RunID:      id,
		Params:     pipeline.DefaultParams(),
		Vocabulary: []string{"book", "love"},
		Clusters:   []pipeline.Cluster{{ID: 0, Label: "book / love", Size: 1}},
		Documents:  []pipeline.Document{{Text: "loved the book", Tokens: []string{"love", "book"}}},
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	obs := &countingObserver{}
	c := New(NewMemoryBackend(), time.Minute, obs)
	ctx := context.Background()

	calls := 0
	compute := func() (*pipeline.Result, error) {
		calls++
		return sampleResult("run-1"), nil
	}

	res, hit, err := c.GetOrCompute(ctx, "k1", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "run-1", res.RunID)

	res, hit, err = c.GetOrCompute(ctx, "k1", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "book / love", res.Clusters[0].Label)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, int64(1), obs.hits.Load())
}

func TestGetOrComputeDoesNotCacheFailures(t *testing.T) {
	backend := NewMemoryBackend()
	c := New(backend, time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), "k", func() (*pipeline.Result, error) {
		return nil, apperrors.ErrEmptyVocabulary
	})
	assert.ErrorIs(t, err, apperrors.ErrEmptyVocabulary)
	assert.Zero(t, backend.Len())
}

func TestGetOrComputeCoalescesConcurrentCalls(t *testing.T) {
	c := New(NewMemoryBackend(), time.Minute, nil)
	var calls atomic.Int64
	release := make(chan struct{})
	compute := func() (*pipeline.Result, error) {
		calls.Add(1)
		<-release
		return sampleResult("shared"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.GetOrCompute(context.Background(), "same", compute)
			assert.NoError(t, err)
			assert.Equal(t, "shared", res.RunID)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int64(2))
}

func TestBackendFailuresOpenBreaker(t *testing.T) {
	backend := &failingBackend{}
	c := New(backend, time.Minute, nil)
	for i := 0; i < 10; i++ {
		_, ok := c.Get(context.Background(), "k")
		assert.False(t, ok)
	}
	assert.Equal(t, int64(5), backend.calls.Load())
	snap := c.Breaker()
	assert.Equal(t, resilience.StateOpen, snap.State)
	assert.Equal(t, "run-cache", snap.Name)
	assert.Equal(t, health.StatusDown, c.HealthCheck(context.Background()).Status)

	res, hit, err := c.GetOrCompute(context.Background(), "k", func() (*pipeline.Result, error) {
		return sampleResult("computed"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "computed", res.RunID)
}

func TestNilBackend(t *testing.T) {
	c := New(nil, time.Minute, nil)
	assert.False(t, c.Enabled())
	assert.Equal(t, health.StatusUp, c.HealthCheck(context.Background()).Status)
	res, hit, err := c.GetOrCompute(context.Background(), "k", func() (*pipeline.Result, error) {
		return sampleResult("x"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "x", res.RunID)
	n, err := c.Invalidate(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvalidate(t *testing.T) {
	backend := NewMemoryBackend()
	c := New(backend, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, Key(nil, pipeline.DefaultParams()), sampleResult("a"))
	require.NoError(t, backend.Set(ctx, "other:key", []byte("x"), 0))

	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, backend.Len())
}

func TestMemoryBackendExpiry(t *testing.T) {
	backend := NewMemoryBackend()
	now := time.Unix(1000, 0)
	backend.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "k", []byte("v"), time.Second))

	got, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Second)
	_, err = backend.Get(ctx, "k")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	score := 4.0
	base := []pipeline.Review{{Text: "great book", Sentiment: "positive", Score: &score}}
	params := pipeline.DefaultParams()

	k := Key(base, params)
	assert.Contains(t, k, keyPrefix)
	assert.Equal(t, k, Key([]pipeline.Review{{Text: "  great book ", Sentiment: "positive ", Score: &score}}, params))

	other := params
	other.K = 6
	assert.NotEqual(t, k, Key(base, other))
	assert.NotEqual(t, k, Key([]pipeline.Review{{Text: "great book", Sentiment: "positive"}}, params))
	assert.NotEqual(t,
		Key([]pipeline.Review{{Text: "ab"}, {Text: "c"}}, params),
		Key([]pipeline.Review{{Text: "a"}, {Text: "bc"}}, params))
}
