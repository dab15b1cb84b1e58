// Package runcache memoizes pipeline results by a digest of their input.
// Runs are deterministic for a given corpus and parameter set, so a hit can
// be served instead of recomputing. Concurrent identical requests share one
// computation.
package runcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/health"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

const keyPrefix = "themes:run:"

// Backend stores encoded results. Get reports a missing key with an error
// matched by pkgredis.IsMiss.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Observer is notified of hits and misses. *metrics.Metrics implements it.
type Observer interface {
	CacheHit()
	CacheMiss()
}

type nopObserver struct{}

func (nopObserver) CacheHit()  {}
func (nopObserver) CacheMiss() {}

// Cache stores run results by input key and coalesces concurrent
// computations of the same key.
type Cache struct {
	backend  Backend
	ttl      time.Duration
	breaker  *resilience.CircuitBreaker
	group    singleflight.Group
	observer Observer
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// New creates a cache over backend. A nil backend disables storage but
// keeps request coalescing.
func New(backend Backend, ttl time.Duration, observer Observer) *Cache {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Cache{
		backend:  backend,
		ttl:      ttl,
		observer: observer,
		breaker: resilience.NewCircuitBreaker("run-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
			IsFailure:        func(err error) bool { return !pkgredis.IsMiss(err) },
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("run cache breaker state changed", "breaker", name, "from", from, "to", to)
			},
		}),
		logger: slog.Default().With("component", "run-cache"),
	}
}

// Get returns the cached result for key. Backend errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) (*pipeline.Result, bool) {
	if c.backend == nil {
		c.miss()
		return nil, false
	}
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsMiss(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result pipeline.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.observer.CacheHit()
	c.logger.Debug("cache hit", "key", key, "run_id", result.RunID)
	return &result, true
}

// Set stores result under key. Failures are logged, not returned.
func (c *Cache) Set(ctx context.Context, key string, result *pipeline.Result) {
	if c.backend == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes, stores and
// returns it. The boolean reports a cache hit. Failed computations are
// never cached.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*pipeline.Result, error),
) (*pipeline.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*pipeline.Result), false, nil
}

// Invalidate removes every cached run.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	if c.backend == nil {
		return 0, nil
	}
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating run cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns the hit and miss counts since start.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Breaker reports the state of the circuit guarding the backend. While it
// is open every lookup is a miss and results are not stored.
func (c *Cache) Breaker() resilience.Snapshot {
	return c.breaker.Snapshot()
}

// HealthCheck reports the cache down while its breaker is open.
func (c *Cache) HealthCheck(ctx context.Context) health.ComponentHealth {
	snap := c.breaker.Snapshot()
	if snap.State == resilience.StateOpen {
		return health.ComponentHealth{
			Status:  health.StatusDown,
			Message: fmt.Sprintf("circuit open since %s after %d failures", snap.OpenedAt.Format(time.RFC3339), snap.ConsecutiveFailures),
		}
	}
	return health.ComponentHealth{Status: health.StatusUp, Message: "circuit " + snap.State.String()}
}

// Enabled reports whether results are stored at all.
func (c *Cache) Enabled() bool { return c.backend != nil }

func (c *Cache) miss() {
	c.misses.Add(1)
	c.observer.CacheMiss()
}

// Key digests the reviews and the canonical parameters. Surrounding
// whitespace in text and sentiment does not change the key.
func Key(reviews []pipeline.Review, params pipeline.Params) string {
	h := sha256.New()
	fmt.Fprintf(h, "strategy=%s|k=%d|min_df=%d|max_df=%g|top_n=%d|seed=%d|n_init=%d|max_iter=%d\n",
		params.Strategy, params.K, params.MinDocumentFrequency, params.MaxDocumentFrequencyFraction,
		params.TopN, params.Seed, params.NInit, params.MaxIterations)
	for _, r := range reviews {
		writeField(h, r.ID)
		writeField(h, strings.TrimSpace(r.Text))
		writeField(h, strings.TrimSpace(r.Sentiment))
		if r.Score != nil && !math.IsNaN(*r.Score) && !math.IsInf(*r.Score, 0) {
			_ = binary.Write(h, binary.LittleEndian, math.Float64bits(*r.Score))
		} else {
			h.Write([]byte{0xff})
		}
		if r.Timestamp != nil {
			writeField(h, r.Timestamp.UTC().Format(time.RFC3339Nano))
		} else {
			writeField(h, "")
		}
	}
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil)[:16])
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
