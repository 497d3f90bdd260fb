package conversion

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// retryPolicy decides whether a failed request is retried and how long to
// wait before the next attempt. It applies uniformly to uploads, task
// creation, status polling, and downloads.
type retryPolicy struct {
	attempts         int
	delay            time.Duration
	maxDelay         time.Duration
	statuses         map[int]bool
	retryRateLimited bool
	log              *zap.Logger
}

// run executes fn up to p.attempts times, sleeping between attempts.
// Non-retryable errors propagate on first occurrence; when attempts run out
// the last error is wrapped with the attempt count.
func (p retryPolicy) run(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}

		lastErr = err
		p.log.Debug("retrying request",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, p.attempts, lastErr)
}

// retryable classifies an error as transient or not. Network failures and
// retryable HTTP statuses are transient. Rate limits are transient unless
// the quota snapshot shows a hard ceiling or the policy disables them.
func (p retryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}

	var re *RateLimitError
	if errors.As(err, &re) {
		return p.retryRateLimited && !re.Exhausted()
	}

	var ae *APIError
	if errors.As(err, &ae) {
		return p.statuses[ae.StatusCode]
	}

	return false
}

// backoff returns the delay before the attempt following failed attempt n
// (1-based): delay * 2^(n-1), jittered upward by at most the deterministic
// component, never exceeding maxDelay.
func (p retryPolicy) backoff(n int) time.Duration {
	d := p.delay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.maxDelay {
			d = p.maxDelay
			break
		}
	}

	jittered := d + time.Duration(rand.Int64N(int64(d)+1))
	if jittered > p.maxDelay {
		jittered = p.maxDelay
	}
	return jittered
}

// sleep waits for the backoff duration after failed attempt n, aborting
// early if the context is cancelled.
func (p retryPolicy) sleep(ctx context.Context, n int) error {
	timer := time.NewTimer(p.backoff(n))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
