// Package retry implements bounded exponential backoff for dependency
// connections. Service mains wrap every startup connect (NATS, Redis,
// OpenSearch, Postgres) in Do so that an orchestration race, where a
// dependency is reported healthy before it accepts connections, is absorbed
// instead of crash-looping the service.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes the backoff schedule for a retried operation.
// The nth retry waits min(InitialDelay * BackoffFactor^n, MaxDelay).
type Policy struct {
	// MaxAttempts bounds the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the per-retry wait.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64

	// MaxTotalTimeout bounds the whole operation including waits.
	// Zero means no overall deadline.
	MaxTotalTimeout time.Duration
}

// DefaultPolicy suits startup dependency connections: ~10 attempts over
// roughly a minute, never waiting more than 10s between attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     10,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		MaxTotalTimeout: time.Minute,
	}
}

// Operation is the unit of work being retried.
type Operation func(ctx context.Context) error

// OnAttemptFailure observes a failed attempt before the next delay.
// It is an observability hook only; it cannot alter control flow.
type OnAttemptFailure func(attempt int, err error, nextDelay time.Duration)

// Do runs op until it succeeds, MaxAttempts is exhausted, MaxTotalTimeout
// elapses, or ctx is cancelled, whichever comes first. The returned error
// wraps the last attempt's error.
func Do(ctx context.Context, policy Policy, op Operation, onFailure OnAttemptFailure) error {
	if policy.MaxAttempts < 1 {
		return errors.New("retry: policy requires at least one attempt")
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = 1
	}

	if policy.MaxTotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.MaxTotalTimeout)
		defer cancel()
	}

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return budgetErr(err, lastErr)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == policy.MaxAttempts {
			break
		}

		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
		if onFailure != nil {
			onFailure(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return budgetErr(ctx.Err(), lastErr)
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
	}

	return fmt.Errorf("retry: all %d attempts failed: %w", policy.MaxAttempts, lastErr)
}

// budgetErr reports an exhausted time budget, keeping the last attempt's
// error visible for errors.Is / errors.As.
func budgetErr(ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("retry: %w", ctxErr)
	}
	return fmt.Errorf("retry: gave up (%v), last error: %w", ctxErr, lastErr)
}
