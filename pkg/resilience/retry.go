package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls the backoff schedule. Zero fields take defaults:
// 3 attempts, 100ms doubling to at most 10s, 10% jitter. Retryable decides
// whether an error is worth another attempt; nil retries every error.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Retryable      func(error) bool
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.JitterFraction <= 0 || cfg.JitterFraction > 1 {
		cfg.JitterFraction = 0.1
	}
	return cfg
}

// Backoff is the delay after the given failed attempt (1-based), jittered
// and capped at MaxDelay.
func (cfg RetryConfig) Backoff(attempt int) time.Duration {
	cfg = cfg.withDefaults()
	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	base = math.Min(base, float64(cfg.MaxDelay))
	jittered := base * (1 + cfg.JitterFraction*(2*rand.Float64()-1))
	return time.Duration(math.Min(jittered, float64(cfg.MaxDelay)))
}

// Permanent marks err as not retryable regardless of RetryConfig.Retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Retry calls fn until it succeeds, the attempts run out, the error is
// permanent or not Retryable, or ctx is done. Non-retryable errors are
// returned unwrapped.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	var log *slog.Logger
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if log != nil {
				log.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if perm := (*permanentError)(nil); errors.As(err, &perm) {
			return perm.err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		}

		delay := cfg.Backoff(attempt)
		if log == nil {
			log = slog.Default().With("component", "retry", "operation", name)
		}
		log.Warn("attempt failed, backing off", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: abandoned after %d attempts: %w (last error: %v)", name, attempt, ctx.Err(), err)
		}
	}
}
