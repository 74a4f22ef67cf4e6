//go:build unix

package pipeio

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/edirooss/procexec/internal/handle"
)

// End is one side of an anonymous pipe.
type End struct {
	H *handle.Handle
}

// Pipe is a pair of handles: the parent-side end (kept open, close-on-exec,
// non-inheritable) and the child-side end (handed to the child, closed in
// the parent immediately after a successful spawn).
type Pipe struct {
	Parent End
	Child  End
}

// New creates an anonymous pipe. The parent-side end always carries
// FD_CLOEXEC so it never leaks into unrelated children spawned concurrently
// from other goroutines; the child-side end is left without CLOEXEC so it
// survives into the exec'd image until the launcher explicitly dup2s it
// onto a stdio slot (dup2 itself clears CLOEXEC on the target fd).
//
// direction is recorded by the caller, not by the pipe itself: a pipe's two
// ends are symmetric at the OS level, Direction only dictates which one the
// launcher treats as "the child's".
func New(direction Direction) (Pipe, error) {
	var fds [2]int
	err := unix.Pipe2(fds[:], unix.O_CLOEXEC)
	if err != nil {
		// Older kernels lack pipe2; fall back to pipe + fcntl, matching the
		// two-step CLOEXEC dance spec.md §4.2 calls out as a fallback only.
		if err == unix.ENOSYS {
			if perr := unix.Pipe(fds[:]); perr != nil {
				return Pipe{}, fmt.Errorf("pipeio: pipe: %w", perr)
			}
			if ferr := setCloexec(fds[0]); ferr != nil {
				_ = unix.Close(fds[0])
				_ = unix.Close(fds[1])
				return Pipe{}, fmt.Errorf("pipeio: fcntl cloexec: %w", ferr)
			}
			if ferr := setCloexec(fds[1]); ferr != nil {
				_ = unix.Close(fds[0])
				_ = unix.Close(fds[1])
				return Pipe{}, fmt.Errorf("pipeio: fcntl cloexec: %w", ferr)
			}
		} else {
			return Pipe{}, fmt.Errorf("pipeio: pipe2: %w", err)
		}
	}

	readEnd := End{H: handle.New(fds[0], handle.Owned)}
	writeEnd := End{H: handle.New(fds[1], handle.Owned)}

	// fds[0] is always the read end, fds[1] the write end (pipe(2) order).
	// Direction decides which one belongs to the child.
	if direction == ChildReads {
		return Pipe{Parent: writeEnd, Child: readEnd}, nil
	}
	return Pipe{Parent: readEnd, Child: writeEnd}, nil
}

func setCloexec(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
	return err
}
