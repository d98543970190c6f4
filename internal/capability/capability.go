// Package capability carries the shared failure and retry policy for
// the remote capabilities (classifier, embedder): transient-error
// classification, bounded exponential backoff with jitter, and a
// configurable cap on concurrent in-flight calls.
package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/Nikunikuo/EmotionMemCore/internal/metrics"
)

// TransientError marks a capability failure as retryable: network
// errors, timeouts, rate limits, upstream 5xx.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient backend error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the given operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryPolicy bounds the retry loop applied to transient failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the capability contract: 3 attempts with
// exponential backoff and jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     3 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	return p
}

// Retry runs fn, retrying on TransientError according to the policy.
// Any other error stops the loop immediately. The last transient error
// is returned once attempts are exhausted.
func Retry(ctx context.Context, policy RetryPolicy, name string, fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialInterval
	bo.MaxInterval = policy.MaxInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		if attempt < policy.MaxAttempts {
			metrics.CapabilityRetriesTotal.WithLabelValues(name).Inc()
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(policy.MaxAttempts-1)), ctx)
	return backoff.Retry(op, b)
}

// Limiter caps concurrent in-flight calls to one remote capability.
// A nil Limiter imposes no cap.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter returns a Limiter allowing at most n concurrent calls,
// or nil when n <= 0 (unlimited).
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		return nil
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn while holding one slot. Acquisition respects ctx.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn(ctx)
}
