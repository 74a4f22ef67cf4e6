//go:build windows

package procwait

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

// Waiter observes termination of a single child process handle and queries
// its exit code exactly once it has been observed signaled.
type Waiter struct {
	pid    int
	handle windows.Handle

	mu     sync.Mutex
	state  State
	result ExitResult
	reaped bool
}

// NewWaiter wraps an already-open process handle (as returned by
// CreateProcessW) together with its pid for reporting purposes.
func NewWaiter(pid int, handle windows.Handle) *Waiter {
	return &Waiter{pid: pid, handle: handle, state: Running}
}

// Wait blocks on the process handle via WaitForSingleObject, the Windows
// analogue of pidfd readiness (spec.md §4.5): the handle becomes signaled
// exactly once, at process termination, and stays signaled thereafter so a
// second call is naturally idempotent without extra bookkeeping.
func (w *Waiter) Wait(timeout time.Duration) (ExitResult, error) {
	w.mu.Lock()
	if w.reaped {
		res := w.result
		w.mu.Unlock()
		return res, nil
	}
	w.mu.Unlock()

	deadline, infinite := Deadline(timeout)

	for {
		var waitMs uint32
		if infinite {
			waitMs = windows.INFINITE
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return TimedOut, ErrTimeout
			}
			waitMs = uint32(remaining / time.Millisecond)
			if waitMs == 0 {
				waitMs = 1
			}
		}

		ev, err := windows.WaitForSingleObject(w.handle, waitMs)
		switch ev {
		case windows.WAIT_OBJECT_0:
			return w.collectExitCode()
		case uint32(windows.WAIT_TIMEOUT):
			if infinite {
				continue // shouldn't happen with INFINITE, but stay safe
			}
			return TimedOut, ErrTimeout
		default:
			if err != nil {
				return ExitResult{}, fmt.Errorf("procwait: WaitForSingleObject: %w", err)
			}
			return ExitResult{}, fmt.Errorf("procwait: WaitForSingleObject: unexpected result %d", ev)
		}
	}
}

// TryReap performs a single non-blocking exit-code check, mirroring the
// Unix API for internal/iomux's drain loop: it returns ok=true only once
// the process handle is actually signaled.
func (w *Waiter) TryReap() (ExitResult, bool, error) {
	signaled, err := windows.WaitForSingleObject(w.handle, 0)
	if err != nil && signaled != windows.WAIT_TIMEOUT {
		return ExitResult{}, false, fmt.Errorf("procwait: WaitForSingleObject: %w", err)
	}
	if signaled != windows.WAIT_OBJECT_0 {
		return ExitResult{}, false, nil
	}
	res, err := w.collectExitCode()
	return res, err == nil, err
}

// collectExitCode reads the final exit code once the handle has signaled.
// GetExitCodeProcess after a signaled wait never returns STILL_ACTIVE, so a
// single call is sufficient; no WNOHANG-style retry loop is needed on this
// platform.
func (w *Waiter) collectExitCode() (ExitResult, error) {
	w.mu.Lock()
	if w.reaped {
		res := w.result
		w.mu.Unlock()
		return res, nil
	}
	w.mu.Unlock()

	var code uint32
	if err := windows.GetExitCodeProcess(w.handle, &code); err != nil {
		return ExitResult{}, fmt.Errorf("procwait: GetExitCodeProcess: %w", err)
	}

	res := ExitResult{Code: int(int32(code))}
	// Processes killed via TerminateProcess with an NTSTATUS-style code (as
	// used for our own Kill) are reported as "signaled" for API symmetry
	// with Unix, using the high bit convention NTSTATUS severity uses.
	if code&0x80000000 != 0 {
		res.Signaled = true
		res.Signal = int(code)
	}

	w.mu.Lock()
	w.result = res
	w.reaped = true
	w.state = Reaped
	w.mu.Unlock()

	return res, nil
}

// Handle returns the underlying process handle, for internal/iomux to fold
// into its own WaitForMultipleObjects call.
func (w *Waiter) Handle() windows.Handle { return w.handle }

// State returns the current lifecycle state.
func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reaped reports whether the exit code has been collected.
func (w *Waiter) Reaped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reaped
}

// BestEffortReap mirrors the Unix API; on Windows there is no zombie to
// clean up, but a terminal GetExitCodeProcess call is still useful to cache
// the result before the handle is closed.
func (w *Waiter) BestEffortReap() {
	var code uint32
	if err := windows.GetExitCodeProcess(w.handle, &code); err != nil {
		return
	}
	const stillActive = 259 // STILL_ACTIVE
	if code == stillActive {
		return // still running; nothing to cache yet
	}
	_, _ = w.collectExitCode()
}

// Close releases the underlying process handle. Safe to call after Wait.
func (w *Waiter) Close() error {
	if w.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(w.handle)
	w.handle = 0
	return err
}
