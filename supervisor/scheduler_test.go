package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerOrdersByWhen(t *testing.T) {
	s := newScheduler()
	now := time.Unix(1000, 0)

	s.push(UnitID(3), now.Add(30*time.Second))
	s.push(UnitID(1), now.Add(10*time.Second))
	s.push(UnitID(2), now.Add(20*time.Second))

	id, when, ok := s.next()
	require.True(t, ok)
	require.Equal(t, UnitID(1), id)
	require.Equal(t, now.Add(10*time.Second), when)

	s.pop()
	id, _, ok = s.next()
	require.True(t, ok)
	require.Equal(t, UnitID(2), id)

	s.pop()
	id, _, ok = s.next()
	require.True(t, ok)
	require.Equal(t, UnitID(3), id)

	s.pop()
	_, _, ok = s.next()
	require.False(t, ok)
}

func TestSchedulerPushReplacesExistingEntry(t *testing.T) {
	s := newScheduler()
	now := time.Unix(2000, 0)

	s.push(UnitID(1), now.Add(time.Minute))
	s.push(UnitID(1), now.Add(time.Second))

	id, when, ok := s.next()
	require.True(t, ok)
	require.Equal(t, UnitID(1), id)
	require.Equal(t, now.Add(time.Second), when)

	s.pop()
	_, _, ok = s.next()
	require.False(t, ok)
}

func TestSchedulerRemoveDeschedulesPendingEvent(t *testing.T) {
	s := newScheduler()
	now := time.Unix(3000, 0)

	s.push(UnitID(1), now.Add(time.Second))
	s.push(UnitID(2), now.Add(2*time.Second))

	s.remove(UnitID(1))

	id, _, ok := s.next()
	require.True(t, ok)
	require.Equal(t, UnitID(2), id)

	// removing an id with no pending event is a no-op
	s.remove(UnitID(99))
	id, _, ok = s.next()
	require.True(t, ok)
	require.Equal(t, UnitID(2), id)
}

func TestRestartPolicyNextBackoffDoublesUpToMax(t *testing.T) {
	p := RestartPolicy{Enabled: true, MinBackoff: 100 * time.Millisecond, MaxBackoff: 500 * time.Millisecond}

	d := p.nextBackoff(0)
	require.Equal(t, 100*time.Millisecond, d)

	d = p.nextBackoff(d)
	require.Equal(t, 200*time.Millisecond, d)

	d = p.nextBackoff(d)
	require.Equal(t, 400*time.Millisecond, d)

	d = p.nextBackoff(d)
	require.Equal(t, 500*time.Millisecond, d) // capped
}

func TestRestartPolicyDefaultsWhenZero(t *testing.T) {
	p := RestartPolicy{Enabled: true}
	require.Equal(t, time.Second, p.nextBackoff(0))
}
