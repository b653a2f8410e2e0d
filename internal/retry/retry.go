// Package retry is the single retry policy used by both the
// control-plane and storage clients: bounded attempts with exponential
// backoff, a pluggable fault classifier, and an unbounded variant for
// idempotent polling.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy bounds a retried operation. Attempts counts the initial try,
// so Attempts=2 means one retry. Forever ignores Attempts and retries
// until the context is done; it is intended only for idempotent GETs.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Forever   bool
}

// Fast is for interactive calls: one retry, short backoff.
var Fast = Policy{Attempts: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}

// Long is for calls worth waiting on: four retries.
var Long = Policy{Attempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}

// Poll retries indefinitely under the caller's context.
var Poll = Policy{Forever: true, BaseDelay: time.Second, MaxDelay: time.Minute}

// Do runs fn until it succeeds, the classifier reports a permanent
// fault, attempts are exhausted, or ctx is done. Cancellation is never
// retried and is returned as-is.
func (p Policy) Do(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; p.Forever || attempt < p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if !retryable(lastErr) {
			return lastErr
		}

		delay := p.backoff(attempt)
		slog.Debug("Retrying after transient fault", "op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 2 * time.Second
	}
	if attempt > 16 {
		attempt = 16
	}
	delay := base << attempt
	if delay > max {
		delay = max
	}
	return delay
}
