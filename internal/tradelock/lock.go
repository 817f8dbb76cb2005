// Package tradelock provides the process-wide mutual exclusion that keeps
// concurrent agents from committing orders at the same time. Agents share
// one exchange account per venue, so interleaved order placement would
// race on margin and position state.
package tradelock

import (
	"context"
	"sync"
)

// Lock is a FIFO mutual-exclusion lock. Waiters are granted the lock in
// the order they called Acquire, so a busy agent cannot starve the rest.
//
// The zero value is not usable; call New.
type Lock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// New returns an unheld lock.
func New() *Lock {
	return &Lock{}
}

// Acquire blocks until the lock is held by the caller or ctx is done.
// On success it returns a release function; calling it more than once is
// safe and releases only once. On ctx cancellation the waiter leaves the
// queue and later waiters keep their positions.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if !l.held && len(l.waiters) == 0 {
		l.held = true
		l.mu.Unlock()
		return l.releaseOnce(), nil
	}

	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		return l.releaseOnce(), nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		l.mu.Unlock()
		// The grant raced the cancellation and we now own the lock.
		// Hand it straight to the next waiter.
		l.release()
		return nil, ctx.Err()
	}
}

// TryAcquire takes the lock only if it is free and nobody is queued.
func (l *Lock) TryAcquire() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held || len(l.waiters) > 0 {
		return nil, false
	}
	l.held = true
	return l.releaseOnce(), true
}

func (l *Lock) releaseOnce() func() {
	var once sync.Once
	return func() { once.Do(l.release) }
}

// release hands the lock to the oldest waiter, or marks it free.
func (l *Lock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(grant)
		return
	}
	l.held = false
}
