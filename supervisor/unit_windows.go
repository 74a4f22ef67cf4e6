//go:build windows

package supervisor

import (
	"time"

	"go.uber.org/zap"
)

// Stop terminates the unit's job object, tearing down the whole process
// tree at once; there is no separate grace step since
// JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE termination is not catchable the way
// SIGTERM is, so there is nothing for a grace period to wait out.
func (u *Unit) Stop() {
	u.stopRequested.Store(true)
	if err := u.child.Kill(1); err != nil {
		u.log.Error("TerminateJobObject failed", zap.Error(err))
	}
	select {
	case <-u.exited:
	case <-time.After(gracePeriod):
		u.log.Warn("unit did not report exit promptly after termination")
	}
}

// Kill terminates the unit's job object immediately (spec.md §4.5
// Kill(graceful=false)). It sends the same termination as Stop on this
// platform, since job object termination is already unconditional and
// uncatchable; unlike Stop, it then waits for the exit without a time limit.
func (u *Unit) Kill() {
	u.stopRequested.Store(true)
	if err := u.child.Kill(1); err != nil {
		u.log.Error("TerminateJobObject failed", zap.Error(err))
	}
	<-u.exited
}
