package common

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// Retryable is implemented by errors that are worth retrying, such as
// 5xx responses and timeouts. Auth failures and business rejections must
// not implement it (or must return false): replaying those wastes nonces
// and can double-submit an order the venue already judged.
type Retryable interface {
	Retryable() bool
}

// ShouldRetry reports whether err is transient.
func ShouldRetry(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// RetryPolicy bounds retries of transient venue failures with
// exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the delay randomized away, 0..1.
	Jitter float64
}

// DefaultRetryPolicy matches the venue's tolerance for bursts without
// stretching a cycle past its deadline.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
	}
}

// Do runs op up to MaxAttempts times, backing off between attempts.
// It stops early when op succeeds, when the error is not transient, or
// when ctx is done. The last error is returned unwrapped so callers can
// inspect venue codes.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if !ShouldRetry(err) || i == attempts-1 {
			return err
		}
		select {
		case <-time.After(p.delay(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		shave := time.Duration(rand.Float64() * p.Jitter * float64(d))
		d -= shave
	}
	if d < 0 {
		d = 0
	}
	return d
}
