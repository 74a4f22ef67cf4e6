package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAcquireReleaseAccounting(t *testing.T) {
	l := newConcurrencyLimiter(2)

	require.NoError(t, l.Acquire(context.Background(), 1))
	require.NoError(t, l.Acquire(context.Background(), 2))
	require.Equal(t, int64(2), l.Current())
	require.False(t, l.TryAcquire(3))

	l.Release(1)
	require.Equal(t, int64(1), l.Current())
	require.True(t, l.TryAcquire(3))
	require.ElementsMatch(t, []UnitID{2, 3}, l.ListAcquired())
}

func TestLimiterReleaseUnknownIDIsNoop(t *testing.T) {
	l := newConcurrencyLimiter(1)
	require.NoError(t, l.Acquire(context.Background(), 1))

	l.Release(99) // never acquired
	require.Equal(t, int64(1), l.Current())

	l.Release(1)
	require.Equal(t, int64(0), l.Current())
}

func TestLimiterAcquireBlocksUntilSlotFree(t *testing.T) {
	l := newConcurrencyLimiter(1)
	require.NoError(t, l.Acquire(context.Background(), 1))

	done := make(chan struct{})
	go func() {
		require.NoError(t, l.Acquire(context.Background(), 2))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release(1)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not unblock after release")
	}
}

func TestLimiterAcquireRespectsContextCancellation(t *testing.T) {
	l := newConcurrencyLimiter(1)
	require.NoError(t, l.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, 2)
	require.Error(t, err)
	require.Equal(t, int64(1), l.Current())
}
