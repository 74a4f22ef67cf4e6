//go:build windows

package procexec

import (
	"sync"

	"golang.org/x/sys/windows"

	"github.com/edirooss/procexec/internal/procwait"
)

// ChildProcess is the Windows half of the type declared in process.go.
// Every child is born into a job object configured with
// JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE (spec.md §4.3 step 4): closing job
// tears down the whole process tree, giving the same guarantee Unix gets
// from killing a process group.
type ChildProcess struct {
	mu sync.Mutex

	pid    int
	waiter *procwait.Waiter
	job    windows.Handle

	stdinPipe, stdoutPipe, stderrPipe *Pipe
}

// Kill terminates the child (and its whole job-object tree) with
// TerminateJobObject. exitCode becomes every process's exit code.
func (c *ChildProcess) Kill(exitCode uint32) error {
	if c.job == 0 {
		return nil
	}
	return windows.TerminateJobObject(c.job, exitCode)
}

// Dispose releases any still-open parent-side pipes, the job object handle,
// and performs a best-effort exit-code collection.
func (c *ChildProcess) Dispose() {
	c.stdinPipe.Close()
	c.stdoutPipe.Close()
	c.stderrPipe.Close()
	c.waiter.BestEffortReap()
	if c.job != 0 {
		windows.CloseHandle(c.job)
		c.job = 0
	}
}
