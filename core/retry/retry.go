// Package retry provides bounded retry policies with pluggable backoff.
//
// A [Policy] limits the total number of attempts (including the first one)
// and decides which errors are worth another attempt. [Do] drives an
// operation under a policy and honours context cancellation while waiting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	// ErrExhausted is returned by Do once the attempt budget is used up.
	ErrExhausted = errors.New("retry attempts exhausted")
)

// BackoffFunc returns the wait before the given retry.
// attempt is one-based: 1 is the wait before the second attempt.
type BackoffFunc func(attempt int) time.Duration

// ShouldRetryFunc decides whether err is worth another attempt.
type ShouldRetryFunc func(err error) bool

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values < 1 are treated as 1.
	MaxAttempts int
	// Backoff produces the wait between attempts. nil means no wait.
	Backoff BackoffFunc
	// ShouldRetry filters retryable errors. nil retries every error.
	ShouldRetry ShouldRetryFunc
}

// NoRetry is a policy with a single attempt.
func NoRetry() Policy { return Policy{MaxAttempts: 1} }

// Default retries up to five attempts with capped exponential backoff.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		Backoff:     ExponentialBackoff(2*time.Millisecond, 2, 100*time.Millisecond, 0.2),
	}
}

func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) shouldRetry(err error) bool {
	if p.ShouldRetry == nil {
		return true
	}
	return p.ShouldRetry(err)
}

// Wait blocks for the backoff of the given retry or until ctx is done.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return ctx.Err()
	}
	d := p.Backoff(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the budget
// is exhausted or ctx is done. fn receives the one-based attempt number.
// It returns the number of attempts made.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.Attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !p.shouldRetry(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		if err := p.Wait(ctx, attempt); err != nil {
			return attempt, err
		}
	}
	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

// ConstantBackoff waits delay between attempts, varied by ±jitter.
func ConstantBackoff(delay time.Duration, jitter float64) BackoffFunc {
	applyJitter := newJitterFunc(jitter)
	return func(int) time.Duration { return applyJitter(delay) }
}

// ExponentialBackoff waits initial*factor^(attempt-1), capped at maxDelay
// (0 disables the cap) and varied by ±jitter.
func ExponentialBackoff(initial time.Duration, factor float64, maxDelay time.Duration, jitter float64) BackoffFunc {
	applyJitter := newJitterFunc(jitter)
	return func(attempt int) time.Duration {
		d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
		if maxDelay > 0 && d > maxDelay {
			d = maxDelay
		}
		return applyJitter(d)
	}
}

// On retries only errors matching one of errs.
func On(errs ...error) ShouldRetryFunc {
	return func(err error) bool {
		for _, e := range errs {
			if errors.Is(err, e) {
				return true
			}
		}
		return false
	}
}

// Except retries every error but those matching errs.
func Except(errs ...error) ShouldRetryFunc {
	return func(err error) bool {
		for _, e := range errs {
			if errors.Is(err, e) {
				return false
			}
		}
		return true
	}
}

func newJitterFunc(jitter float64) func(time.Duration) time.Duration {
	if jitter <= 0 {
		return func(d time.Duration) time.Duration { return d }
	}
	if jitter > 1 {
		jitter = 1
	}
	return func(d time.Duration) time.Duration {
		delta := float64(d) * jitter * (rand.Float64()*2 - 1)
		return time.Duration(float64(d) + delta)
	}
}
