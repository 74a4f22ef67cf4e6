//go:build unix

package procexec

import (
	"sync"
	"syscall"

	"github.com/edirooss/procexec/internal/procwait"
)

// ChildProcess is the Unix half of the type declared in process.go.
// Every child is launched with setpgid so Kill can terminate the whole
// process group in one signal, the Unix analogue of Windows's kill-on-
// job-close semantics (spec.md §4.3 step 4).
type ChildProcess struct {
	mu sync.Mutex

	pid    int
	waiter *procwait.Waiter

	// stdin/stdout/stderr hold the parent-side Pipe only when the
	// corresponding slot was StdioOwnedPipe; nil otherwise.
	stdinPipe, stdoutPipe, stderrPipe *Pipe
}

// Kill sends sig (SIGTERM if sig is 0) to the child's process group. Safe
// to call after the child has already exited; the syscall then simply
// fails with ESRCH, which Kill ignores.
func (c *ChildProcess) Kill(sig syscall.Signal) error {
	if sig == 0 {
		sig = syscall.SIGTERM
	}
	err := syscall.Kill(-c.pid, sig)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// Dispose releases any still-open parent-side pipes and performs a
// best-effort non-blocking reap, so a caller that never calls WaitForExit
// doesn't leave a zombie behind (spec.md §4.1, §4.5).
func (c *ChildProcess) Dispose() {
	c.stdinPipe.Close()
	c.stdoutPipe.Close()
	c.stderrPipe.Close()
	c.waiter.BestEffortReap()
}
