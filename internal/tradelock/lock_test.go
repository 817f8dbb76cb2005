package tradelock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLockMutualExclusion(t *testing.T) {
	l := New()
	var (
		inCritical int
		maxSeen    int
		mu         sync.Mutex
		wg         sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxSeen {
				maxSeen = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestLockFIFOOrder(t *testing.T) {
	l := New()
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	const n = 5
	var (
		order []int
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	queued := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			queued <- struct{}{}
			r, err := l.Acquire(context.Background())
			if err != nil {
				t.Errorf("waiter %d: %v", id, err)
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			r()
		}(i)
		// Let waiter i enqueue before starting waiter i+1. The handoff
		// channel only proves the goroutine started, so give Acquire a
		// moment to reach the queue.
		<-queued
		time.Sleep(10 * time.Millisecond)
	}

	release()
	wg.Wait()

	for i, id := range order {
		if id != i {
			t.Fatalf("grant order = %v, want FIFO", order)
		}
	}
}

func TestLockAcquireHonorsContext(t *testing.T) {
	l := New()
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := l.Acquire(ctx); err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Acquire did not return promptly after deadline")
	}
}

func TestLockCanceledWaiterDoesNotBlockQueue(t *testing.T) {
	l := New()
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	canceled := make(chan struct{})
	go func() {
		if _, err := l.Acquire(ctx); err == nil {
			t.Error("canceled waiter acquired the lock")
		}
		close(canceled)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-canceled

	release()

	got := make(chan struct{})
	go func() {
		r, err := l.Acquire(context.Background())
		if err != nil {
			t.Errorf("Acquire after cancel: %v", err)
			return
		}
		r()
		close(got)
	}()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("lock stuck after waiter cancellation")
	}
}

func TestLockReleaseIdempotent(t *testing.T) {
	l := New()
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release()
	release() // must not double-grant

	r1, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	if _, ok := l.TryAcquire(); ok {
		t.Error("TryAcquire succeeded while lock held")
	}
}

func TestTryAcquire(t *testing.T) {
	l := New()
	r, ok := l.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire on free lock failed")
	}
	if _, ok := l.TryAcquire(); ok {
		t.Error("second TryAcquire succeeded")
	}
	r()
	if _, ok := l.TryAcquire(); !ok {
		t.Error("TryAcquire after release failed")
	}
}
