// Package backoff retries failing calls with randomized exponential backoff.
// It provides blocking wrappers, which sleep on the calling goroutine, and
// context-aware wrappers whose waits are cancellable and safe to run on many
// goroutines concurrently.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures one retry sequence. It is read-only for the lifetime of
// a wrapped call; each invocation keeps its own private retry state.
type Policy struct {
	// InitialDelay seeds the delay sequence. The wait before the first
	// retry is InitialDelay * ExponentialBase (jittered when enabled).
	InitialDelay time.Duration

	// ExponentialBase multiplies the delay on every retry. Must be > 1
	// for the sequence to grow.
	ExponentialBase float64

	// Jitter stretches each delay by a random factor in [1, 2). The
	// factor applies to the running delay, not the base delay, so the
	// randomness compounds across the whole retry run.
	Jitter bool

	// MaxRetries bounds retries, not counting the initial attempt. Zero
	// means a single retryable failure immediately exhausts the call.
	MaxRetries int

	// Retryable classifies errors. Nil defaults to IsRetryable, which
	// retries only errors wrapped by MarkRetryable.
	Retryable func(error) bool

	// OnRetry, if set, is invoked before each backoff wait.
	OnRetry func(err error, retries int, delay time.Duration)
}

// DefaultPolicy returns the standard policy for remote API calls.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay:    time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		MaxRetries:      20,
	}
}

// Test seams. Overridden by package tests to make delay sequences
// deterministic and instantaneous.
var (
	sleep     = time.Sleep
	randFloat = rand.Float64
	waitCtx   = waitContext
)

// waitContext waits d or until ctx is done, whichever comes first.
func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextDelay advances the delay recurrence: delay * base * (1 + jitter),
// with jitter drawn uniformly from [0, 1) when enabled.
func nextDelay(delay time.Duration, p Policy) time.Duration {
	factor := p.ExponentialBase
	if p.Jitter {
		factor *= 1 + randFloat()
	}
	return time.Duration(float64(delay) * factor)
}

// Do invokes fn, retrying retryable failures per p. It blocks the calling
// goroutine during backoff waits.
func Do(p Policy, fn func() error) error {
	_, err := DoValue(p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue invokes fn until it succeeds, fails with a non-retryable error, or
// exhausts p.MaxRetries. The success value is returned unmodified; fn is
// re-invoked as-is on every attempt, so it must be idempotent.
func DoValue[T any](p Policy, fn func() (T, error)) (T, error) {
	var zero T
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	retries := 0
	delay := p.InitialDelay
	for {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return zero, err
		}

		retries++
		if retries > p.MaxRetries {
			return zero, &RetriesExhaustedError{MaxRetries: p.MaxRetries, Last: err}
		}

		delay = nextDelay(delay, p)
		if p.OnRetry != nil {
			p.OnRetry(err, retries, delay)
		}
		sleep(delay)
	}
}

// DoContext is the context-aware form of Do.
func DoContext(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := DoValueContext(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValueContext is the context-aware form of DoValue. Backoff waits select
// on ctx, so cancellation interrupts a wait instead of letting it run out,
// and concurrent invocations never block each other.
func DoValueContext[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	retries := 0
	delay := p.InitialDelay
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return zero, err
		}

		retries++
		if retries > p.MaxRetries {
			return zero, &RetriesExhaustedError{MaxRetries: p.MaxRetries, Last: err}
		}

		delay = nextDelay(delay, p)
		if p.OnRetry != nil {
			p.OnRetry(err, retries, delay)
		}
		if err := waitCtx(ctx, delay); err != nil {
			return zero, err
		}
	}
}
