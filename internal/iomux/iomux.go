// Package iomux implements C4, the output multiplexer: draining a child's
// stdout and stderr concurrently with waiting for its exit, using a single
// blocking primitive per platform so no helper goroutine is needed per
// stream (spec.md §4.4).
package iomux

import (
	"errors"

	"github.com/edirooss/procexec/internal/growbuf"
)

// Result is what Drain hands back to the root package, on success or
// failure alike: a failed Drain still returns whatever bytes it had
// accumulated on each stream before the failure, so the caller never loses
// output to an error (spec.md §7).
type Result struct {
	Stdout, Stderr *growbuf.Buffer
	// Exited reports whether process termination was observed before the
	// drain returned (it may return early on a buffer limit or error
	// without having seen the exit).
	Exited bool
}

// readChunk is the per-iteration read-sizing hint: ask for a generous chunk
// so a busy child doesn't force many tiny syscalls, but don't over-commit
// memory for a stream that turns out to produce little.
const readChunk = 64 << 10 // 64 KiB

// ErrTimeout is returned when the caller-supplied deadline elapses before
// the drain completes. The root package wraps it into its own TimeoutError.
var ErrTimeout = errors.New("iomux: timeout")

// ErrPollFailed wraps a non-retryable failure of the underlying multiplex
// syscall. EINTR is retried internally and never surfaces this way.
type ErrPollFailed struct{ Err error }

func (e *ErrPollFailed) Error() string { return "iomux: poll: " + e.Err.Error() }
func (e *ErrPollFailed) Unwrap() error { return e.Err }

// ErrBufferLimit is returned when a stream would grow past
// growbuf.MaxStreamBytes.
type ErrBufferLimit struct{ Stream string }

func (e *ErrBufferLimit) Error() string { return "iomux: " + e.Stream + " exceeded buffer limit" }
