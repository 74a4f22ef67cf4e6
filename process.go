package procexec

import (
	"errors"
	"time"

	"github.com/edirooss/procexec/internal/procwait"
)

// ProcessState mirrors the child's lifecycle (spec.md §4.5):
// Running, then Exited once termination is observed, then Reaped once the
// kernel-level cleanup (waitpid/GetExitCodeProcess) has completed. Exited
// and Reaped happen atomically together on both platforms as implemented
// here, but are kept distinct in the API for platforms/paths where they
// could diverge.
type ProcessState int

const (
	StateRunning ProcessState = iota
	StateExited
	StateReaped
)

// ExitStatus is the outcome of a successfully observed exit.
type ExitStatus struct {
	// Code is the process's exit code. On Unix it is 128+Signal if
	// Signaled; on Windows it is the raw exit code in either case.
	Code int
	// Signaled reports whether the child was terminated by a signal
	// (Unix) or an NTSTATUS-style termination code (Windows Kill).
	Signaled bool
	Signal   int
}

// DrainResult is the outcome of a Drain call: the bytes read from each
// stream during that call only (earlier calls' bytes are not repeated), and
// whether process exit was observed during the call.
type DrainResult struct {
	Stdout, Stderr []byte
	Exited         bool
}

// ChildProcess is a running or terminated child process launched by Start,
// with its stdio endpoints and exit-detection primitive attached (spec.md
// §3, §4.5). The concrete struct is declared per-platform (process_unix.go
// / process_windows.go) since each carries a different process-tree-kill
// handle (a pgid on Unix, a job object on Windows); this file holds the
// methods and types common to both.

// Pid returns the OS process id. It remains valid (but may be recycled by
// the OS) after the process has exited and been reaped.
func (c *ChildProcess) Pid() int { return c.pid }

// WaitForExit blocks until the child terminates or timeout elapses (<=0
// means forever), returning its exit status (spec.md §4.5). It is
// idempotent: calling it again after a successful return is cheap and
// returns the same cached status.
func (c *ChildProcess) WaitForExit(timeout time.Duration) (ExitStatus, error) {
	res, err := c.waiter.Wait(timeout)
	if err != nil {
		if errors.Is(err, procwait.ErrTimeout) {
			return ExitStatus{}, &TimeoutError{}
		}
		return ExitStatus{}, err
	}
	return ExitStatus{Code: res.Code, Signaled: res.Signaled, Signal: res.Signal}, nil
}

// State reports the child's current lifecycle state.
func (c *ChildProcess) State() ProcessState {
	switch c.waiter.State() {
	case procwait.Reaped:
		return StateReaped
	case procwait.Exited, procwait.Signaled:
		return StateExited
	default:
		return StateRunning
	}
}

// Stdin returns the parent-side pipe wired to the child's stdin, or nil if
// stdin was not configured as StdioOwnedPipe.
func (c *ChildProcess) Stdin() *Pipe { return c.stdinPipe }
