package supervisor

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// concurrencyLimiter bounds how many units may run at once. It is the same
// accountable-ownership semaphore the teacher's slotPool implements, ported
// onto golang.org/x/sync/semaphore.Weighted so cancellable acquisition
// comes from a maintained library instead of a hand-rolled cond-var wait
// loop. The capacity is fixed at construction; it cannot be resized.
type concurrencyLimiter struct {
	mu       sync.Mutex
	sem      *semaphore.Weighted
	cap      int64
	acquired map[UnitID]struct{}
}

func newConcurrencyLimiter(max int64) *concurrencyLimiter {
	return &concurrencyLimiter{
		sem:      semaphore.NewWeighted(max),
		cap:      max,
		acquired: make(map[UnitID]struct{}),
	}
}

// Acquire blocks until a slot is free or ctx is canceled, and registers id
// as the owner.
func (l *concurrencyLimiter) Acquire(ctx context.Context, id UnitID) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.mu.Lock()
	l.acquired[id] = struct{}{}
	l.mu.Unlock()
	return nil
}

// TryAcquire attempts a non-blocking acquire.
func (l *concurrencyLimiter) TryAcquire(id UnitID) bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.mu.Lock()
	l.acquired[id] = struct{}{}
	l.mu.Unlock()
	return true
}

// Release frees the slot owned by id. No-op if id does not hold one.
func (l *concurrencyLimiter) Release(id UnitID) {
	l.mu.Lock()
	_, held := l.acquired[id]
	delete(l.acquired, id)
	l.mu.Unlock()

	if held {
		l.sem.Release(1)
	}
}

// ListAcquired returns a snapshot of the current owners.
func (l *concurrencyLimiter) ListAcquired() []UnitID {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]UnitID, 0, len(l.acquired))
	for id := range l.acquired {
		out = append(out, id)
	}
	return out
}

// Current returns the number of slots currently held.
func (l *concurrencyLimiter) Current() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.acquired))
}

// Capacity returns the configured concurrency limit.
func (l *concurrencyLimiter) Capacity() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cap
}
