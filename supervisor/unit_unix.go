//go:build unix

package supervisor

import (
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Stop terminates the unit: SIGTERM to its process group, escalating to
// SIGKILL if it hasn't exited within gracePeriod (spec.md ambient teardown
// idiom, grounded on the teacher's process.Close SIGTERM-grace-SIGKILL
// sequence).
func (u *Unit) Stop() {
	u.stopRequested.Store(true)
	if err := u.child.Kill(syscall.SIGTERM); err != nil {
		u.log.Warn("SIGTERM failed", zap.Error(err))
	}

	select {
	case <-u.exited:
		return
	case <-time.After(gracePeriod):
	}

	u.log.Warn("grace period expired; sending SIGKILL")
	if err := u.child.Kill(syscall.SIGKILL); err != nil {
		u.log.Error("SIGKILL failed", zap.Error(err))
	}
	<-u.exited
}

// Kill terminates the unit immediately with SIGKILL, skipping Stop's
// SIGTERM-then-grace-period sequence entirely (spec.md §4.5
// Kill(graceful=false)) — for a unit that needs to come down right away
// rather than be given a chance to clean up after itself.
func (u *Unit) Kill() {
	u.stopRequested.Store(true)
	if err := u.child.Kill(syscall.SIGKILL); err != nil {
		u.log.Warn("SIGKILL failed", zap.Error(err))
	}
	<-u.exited
}
