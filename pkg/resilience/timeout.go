package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
)

// Timed runs fn under a deadline of timeout and returns its value. When
// the deadline passes first the error wraps apperrors.ErrTimeout and the
// zero value is returned; fn keeps running until it observes its context,
// and whatever it produces is dropped. A non-positive timeout runs fn
// inline.
func Timed[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	type outcome struct {
		val T
		err error
	}
	var zero T
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(runCtx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.val, nil
		}
		if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, timeoutError(name, timeout)
		}
		return zero, out.err
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: cancelled: %w", name, err)
		}
		return zero, timeoutError(name, timeout)
	}
}

// WithTimeout is Timed for functions without a result.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := Timed(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func timeoutError(name string, limit time.Duration) error {
	return fmt.Errorf("%s: %w after %v", name, apperrors.ErrTimeout, limit)
}
