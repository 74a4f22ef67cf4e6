//go:build unix

package procwait

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// selfPipe is the process-wide SIGCHLD fallback used when pidfd_open is
// unavailable (old kernels). One pipe, one signal.Notify goroutine, shared
// by every Waiter: spec.md §9 prefers the self-pipe specifically because it
// keeps each Waiter's own poll loop as the only blocking point, and a
// single shared pipe avoids a thread/goroutine-per-child reaper.
var (
	selfPipeOnce sync.Once
	selfPipeR    int = -1
	selfPipeW    int = -1
)

func ensureSelfPipe() int {
	selfPipeOnce.Do(func() {
		var fds [2]int
		if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
			return
		}
		selfPipeR, selfPipeW = fds[0], fds[1]

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGCHLD)
		go func() {
			for range ch {
				// Best effort: wake every waiter polling the shared fd.
				// EAGAIN means the pipe is already "signaled" (unread byte
				// pending) which is fine, readers drain it themselves.
				_, _ = unix.Write(selfPipeW, []byte{0})
			}
		}()
	})
	return selfPipeR
}

func drainSelfPipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(selfPipeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Waiter observes termination of a single child pid and reaps it exactly
// once.
type Waiter struct {
	pid   int
	pidfd int // -1 if unavailable; falls back to the shared self-pipe

	mu      sync.Mutex
	state   State
	result  ExitResult
	reaped  bool
}

// NewWaiter opens a pidfd for pid if the kernel supports it, else arms the
// shared self-pipe fallback.
func NewWaiter(pid int) *Waiter {
	w := &Waiter{pid: pid, pidfd: -1, state: Running}

	fd, err := unix.PidfdOpen(pid, 0)
	if err == nil {
		w.pidfd = fd
	} else {
		ensureSelfPipe()
	}
	return w
}

// Wait blocks until the child exits or timeout elapses (<=0 means forever),
// per spec.md §4.5. Idempotent: a second call after a successful wait
// returns the cached result without touching the kernel.
func (w *Waiter) Wait(timeout time.Duration) (ExitResult, error) {
	w.mu.Lock()
	if w.reaped {
		res := w.result
		w.mu.Unlock()
		return res, nil
	}
	w.mu.Unlock()

	deadline, infinite := Deadline(timeout)

	pollFd := w.pidfd
	usingSelfPipe := pollFd < 0
	if usingSelfPipe {
		pollFd = selfPipeR
	}

	for {
		// First, a non-blocking reap attempt: exit may have already raced
		// ahead of us (spec.md §8 scenario 6).
		if res, ok, err := w.tryReap(); err != nil {
			return ExitResult{}, err
		} else if ok {
			return res, nil
		}

		var timeoutMs int
		if infinite {
			timeoutMs = -1
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return TimedOut, ErrTimeout
			}
			timeoutMs = int(remaining / time.Millisecond)
			if timeoutMs == 0 {
				timeoutMs = 1
			}
		}

		pfd := []unix.PollFd{{Fd: int32(pollFd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue // retry with a recomputed deadline, per spec.md §7
			}
			return ExitResult{}, fmt.Errorf("procwait: poll: %w", err)
		}
		if n == 0 {
			if infinite {
				continue // spurious; should not happen with timeoutMs==-1
			}
			return TimedOut, ErrTimeout
		}

		if usingSelfPipe {
			drainSelfPipe()
		}
		// Loop back to tryReap: pidfd readiness or a SIGCHLD wake both
		// just mean "go check waitpid", they don't guarantee it's *this*
		// pid when using the shared self-pipe.
	}
}

// PollFD returns the fd that becomes readable on process exit: the pidfd if
// the kernel supports it, else the shared self-pipe's read end. This lets
// internal/iomux fold exit detection into its own poll() call alongside the
// stdout/stderr fds, rather than blocking on Wait from a separate goroutine
// (spec.md §4.4, "a single poll call covering stdout, stderr, and exit").
func (w *Waiter) PollFD() int {
	if w.pidfd >= 0 {
		return w.pidfd
	}
	return ensureSelfPipe()
}

// UsesSelfPipe reports whether PollFD refers to the shared self-pipe
// (shared across every Waiter in the process) rather than this Waiter's own
// pidfd. Callers polling the self-pipe must call DrainSelfPipeEvent after
// each readiness notification and must treat a readiness as "check waitpid",
// not as "this pid in particular exited".
func (w *Waiter) UsesSelfPipe() bool { return w.pidfd < 0 }

// DrainSelfPipeEvent consumes pending bytes from the shared self-pipe.
// Called by a poller after observing the self-pipe fd ready.
func DrainSelfPipeEvent() { drainSelfPipe() }

// TryReap performs a single non-blocking waitpid(WNOHANG) and is exported
// for internal/iomux's drain loop to call after observing exit-fd readiness.
func (w *Waiter) TryReap() (ExitResult, bool, error) { return w.tryReap() }

// tryReap performs a single non-blocking waitpid(WNOHANG).
func (w *Waiter) tryReap() (ExitResult, bool, error) {
	w.mu.Lock()
	if w.reaped {
		res := w.result
		w.mu.Unlock()
		return res, true, nil
	}
	w.mu.Unlock()

	var status syscall.WaitStatus
	gotPid, err := syscall.Wait4(w.pid, &status, syscall.WNOHANG, nil)
	if err != nil {
		if err == syscall.EINTR {
			return ExitResult{}, false, nil
		}
		return ExitResult{}, false, fmt.Errorf("procwait: wait4: %w", err)
	}
	if gotPid == 0 {
		return ExitResult{}, false, nil // not yet exited
	}

	res := ExitResult{}
	if status.Signaled() {
		res.Signaled = true
		res.Signal = int(status.Signal())
		res.Code = 128 + res.Signal
	} else {
		res.Code = status.ExitStatus()
	}

	w.mu.Lock()
	w.result = res
	w.reaped = true
	w.state = Reaped
	w.mu.Unlock()

	if w.pidfd >= 0 {
		_ = unix.Close(w.pidfd)
	}

	return res, true, nil
}

// State returns the current lifecycle state.
func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reaped reports whether the child has been fully reaped.
func (w *Waiter) Reaped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reaped
}

// BestEffortReap issues a single non-blocking waitpid, used by Close/Dispose
// on a non-Reaped handle to avoid leaving a zombie (spec.md §4.5).
func (w *Waiter) BestEffortReap() {
	_, _, _ = w.tryReap()
}
