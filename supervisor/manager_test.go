//go:build unix

package supervisor

import (
	"context"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/procexec"
)

type fakeRecorder struct {
	mu      sync.Mutex
	nextID  int64
	records []RunRecord
}

func (f *fakeRecorder) GenerateID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeRecorder) Record(ctx context.Context, rec RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) snapshot() []RunRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RunRecord, len(f.records))
	copy(out, f.records)
	return out
}

func TestManagerStartUnitCollectsLogsAndExit(t *testing.T) {
	rec := &fakeRecorder{}
	mgr := NewManager(zap.NewNop(), 4, rec)

	id, err := mgr.StartUnit(context.Background(), procexec.StartOptions{
		Path: "/bin/echo",
		Argv: []string{"echo", "hello from unit"},
	}, RestartPolicy{})
	require.NoError(t, err)

	u := mgr.Unit(id)
	require.NotNil(t, u)

	select {
	case <-u.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("unit did not exit in time")
	}

	require.Equal(t, 0, u.ExitCode())
	require.Contains(t, mgr.Logs(id, 0), "hello from unit")

	// reapOnExit runs asynchronously right after the exited channel
	// closes; give it a moment to remove the unit and persist history.
	require.Eventually(t, func() bool {
		return mgr.Unit(id) == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	recorded := rec.snapshot()[0]
	require.Equal(t, id, recorded.UnitID)
	require.Equal(t, 0, recorded.ExitCode)
	require.False(t, recorded.Signaled)

	// Logs must survive after the unit is reaped.
	require.Contains(t, mgr.Logs(id, 0), "hello from unit")
}

// TestManagerStartUnitCollectsLogsAcrossMultipleDrainWindows exercises a
// unit whose output spans more than one drainPollInterval window, guarding
// against supervise() treating each Drain call's result as a cumulative
// buffer rather than that call's own delta (in which case only the final
// window's output would survive).
func TestManagerStartUnitCollectsLogsAcrossMultipleDrainWindows(t *testing.T) {
	rec := &fakeRecorder{}
	mgr := NewManager(zap.NewNop(), 4, rec)

	id, err := mgr.StartUnit(context.Background(), procexec.StartOptions{
		Path: "/bin/sh",
		Argv: []string{"sh", "-c", "echo first-window; sleep 3; echo second-window"},
	}, RestartPolicy{})
	require.NoError(t, err)

	u := mgr.Unit(id)
	require.NotNil(t, u)

	select {
	case <-u.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("unit did not exit in time")
	}

	require.Equal(t, 0, u.ExitCode())
	logs := mgr.Logs(id, 0)
	require.Contains(t, logs, "first-window")
	require.Contains(t, logs, "second-window")
}

func TestManagerKillUnitTerminatesRunningProcess(t *testing.T) {
	mgr := NewManager(zap.NewNop(), 4, nil)

	id, err := mgr.StartUnit(context.Background(), procexec.StartOptions{
		Path: "/bin/sleep",
		Argv: []string{"sleep", "60"},
	}, RestartPolicy{})
	require.NoError(t, err)

	u := mgr.Unit(id)
	require.NotNil(t, u)

	require.NoError(t, mgr.KillUnit(id))

	select {
	case <-u.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("unit did not die in time")
	}

	signaled, signal := u.ExitStatus()
	require.True(t, signaled)
	require.Equal(t, int(syscall.SIGKILL), signal)
}

func TestManagerStopUnitTerminatesRunningProcess(t *testing.T) {
	mgr := NewManager(zap.NewNop(), 4, nil)

	id, err := mgr.StartUnit(context.Background(), procexec.StartOptions{
		Path: "/bin/sleep",
		Argv: []string{"sleep", "60"},
	}, RestartPolicy{})
	require.NoError(t, err)

	u := mgr.Unit(id)
	require.NotNil(t, u)

	require.NoError(t, mgr.StopUnit(id))

	select {
	case <-u.Done():
	case <-time.After(gracePeriod + 5*time.Second):
		t.Fatal("unit did not stop in time")
	}
}

func TestManagerRestartsUnitAfterUnexpectedExit(t *testing.T) {
	mgr := NewManager(zap.NewNop(), 4, nil)

	id, err := mgr.StartUnit(context.Background(), procexec.StartOptions{
		Path: "/bin/echo",
		Argv: []string{"echo", "restart me"},
	}, RestartPolicy{Enabled: true, MinBackoff: 20 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})
	require.NoError(t, err)

	firstUnit := mgr.Unit(id)
	require.NotNil(t, firstUnit)
	select {
	case <-firstUnit.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("unit did not exit in time")
	}

	// A restart is scheduled rather than immediate, so wait for a new Unit
	// under the same id to appear and run to completion in turn.
	require.Eventually(t, func() bool {
		u := mgr.Unit(id)
		return u != nil && u != firstUnit
	}, 2*time.Second, 10*time.Millisecond)

	restarted := mgr.Unit(id)
	select {
	case <-restarted.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("restarted unit did not exit in time")
	}

	require.Contains(t, mgr.Logs(id, 0), "restart me")
	require.NoError(t, mgr.StopUnit(id))
}

func TestManagerStopUnitCancelsPendingRestart(t *testing.T) {
	mgr := NewManager(zap.NewNop(), 4, nil)

	id, err := mgr.StartUnit(context.Background(), procexec.StartOptions{
		Path: "/bin/echo",
		Argv: []string{"echo", "once"},
	}, RestartPolicy{Enabled: true, MinBackoff: time.Minute})
	require.NoError(t, err)

	u := mgr.Unit(id)
	require.NotNil(t, u)
	select {
	case <-u.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("unit did not exit in time")
	}

	// Stop before the minute-long backoff would fire; it must not restart.
	require.NoError(t, mgr.StopUnit(id))

	require.Never(t, func() bool {
		other := mgr.Unit(id)
		return other != nil && other != u
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestManagerCapacityLimitsConcurrentUnits(t *testing.T) {
	mgr := NewManager(zap.NewNop(), 1, nil)
	require.Equal(t, int64(1), mgr.Capacity())

	id1, err := mgr.StartUnit(context.Background(), procexec.StartOptions{
		Path: "/bin/sleep",
		Argv: []string{"sleep", "5"},
	}, RestartPolicy{})
	require.NoError(t, err)
	defer mgr.StopUnit(id1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = mgr.StartUnit(ctx, procexec.StartOptions{
		Path: "/bin/echo",
		Argv: []string{"echo", "blocked"},
	}, RestartPolicy{})
	require.Error(t, err)
}
