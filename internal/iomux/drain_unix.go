//go:build unix

package iomux

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/edirooss/procexec/internal/growbuf"
	"github.com/edirooss/procexec/internal/procwait"
)

// streamSlot tracks one drained stream's fd and whether it has hit EOF.
type streamSlot struct {
	fd     int
	name   string
	buf    *growbuf.Buffer
	closed bool
}

// Drain multiplexes reads from stdout and stderr with waiting for the
// child's exit using a single poll(2) call per iteration, per spec.md §4.4.
// It marks stdoutFd/stderrFd non-blocking itself; callers must not also
// read from them concurrently.
//
// Once exit is observed, Drain performs exactly one more non-blocking pass
// over any still-open streams and returns — it does not wait for the pipes
// themselves to reach EOF, since a grandchild holding the write end open
// would otherwise hang Drain forever (spec.md §4.4 "exit observed implies
// at most one more drain pass").
func Drain(stdoutFd, stderrFd int, waiter *procwait.Waiter, timeout time.Duration) (Result, error) {
	stdout := &streamSlot{fd: stdoutFd, name: "stdout", buf: growbuf.New(readChunk)}
	stderr := &streamSlot{fd: stderrFd, name: "stderr", buf: growbuf.New(readChunk)}
	streams := []*streamSlot{stdout, stderr}

	for _, s := range streams {
		if s.fd < 0 {
			s.closed = true
			continue
		}
		if err := unix.SetNonblock(s.fd, true); err != nil {
			return partial(stdout, stderr), &ErrPollFailed{Err: err}
		}
	}

	deadline, infinite := procwait.Deadline(timeout)
	exitFd := waiter.PollFD()
	exited := false

	for {
		if allClosed(streams) && exited {
			break
		}

		pfds := buildPollSet(streams, exitFd, exited)
		if len(pfds) == 0 {
			break
		}

		timeoutMs, expired := pollTimeoutMs(deadline, infinite)
		if expired {
			return partial(stdout, stderr), ErrTimeout
		}

		n, err := unix.Poll(pfds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return partial(stdout, stderr), &ErrPollFailed{Err: err}
		}
		if n == 0 {
			if infinite {
				continue
			}
			return partial(stdout, stderr), ErrTimeout
		}

		for _, pfd := range pfds {
			if pfd.Revents == 0 {
				continue
			}
			if int(pfd.Fd) == exitFd {
				if waiter.UsesSelfPipe() {
					procwait.DrainSelfPipeEvent()
				}
				if _, ok, werr := waiter.TryReap(); werr != nil {
					return partial(stdout, stderr), werr
				} else if ok {
					exited = true
				}
				continue
			}
			for _, s := range streams {
				if s.fd == int(pfd.Fd) {
					if err := drainReady(s, pfd.Revents); err != nil {
						return partial(stdout, stderr), err
					}
				}
			}
		}

		if exited {
			// One final non-blocking pass over whatever's left, then stop.
			if err := finalNonBlockingPass(streams); err != nil {
				return partial(stdout, stderr), err
			}
			for _, s := range streams {
				s.closed = true
			}
			break
		}
	}

	return Result{Stdout: stdout.buf, Stderr: stderr.buf, Exited: exited}, nil
}

// partial builds the Result a failed Drain returns, preserving whatever
// bytes had already been accumulated (spec.md §7: "a failed DrainOutAndErr
// returns the currently accumulated byte counts so the caller can recover
// partial output").
func partial(stdout, stderr *streamSlot) Result {
	return Result{Stdout: stdout.buf, Stderr: stderr.buf}
}

func allClosed(streams []*streamSlot) bool {
	for _, s := range streams {
		if !s.closed {
			return false
		}
	}
	return true
}

func buildPollSet(streams []*streamSlot, exitFd int, exited bool) []unix.PollFd {
	var pfds []unix.PollFd
	for _, s := range streams {
		if !s.closed {
			pfds = append(pfds, unix.PollFd{Fd: int32(s.fd), Events: unix.POLLIN})
		}
	}
	if !exited {
		pfds = append(pfds, unix.PollFd{Fd: int32(exitFd), Events: unix.POLLIN})
	}
	return pfds
}

func pollTimeoutMs(deadline time.Time, infinite bool) (ms int, expired bool) {
	if infinite {
		return -1, false
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, true
	}
	ms = int(remaining / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	return ms, false
}

// drainReady reads whatever is currently available from a ready stream,
// looping until EAGAIN so a single poll readiness services a full burst of
// data rather than costing one poll call per read(2).
func drainReady(s *streamSlot, revents int16) error {
	for {
		space, ok := s.buf.AppendReadSpace(readChunk)
		if !ok {
			return &ErrBufferLimit{Stream: s.name}
		}
		n, err := unix.Read(s.fd, space)
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			if err == unix.EINTR {
				continue
			}
			return &ErrPollFailed{Err: err}
		}
		if n == 0 {
			s.closed = true
			return nil
		}
		s.buf.Commit(n)
		if n < len(space) {
			// Short read: the pipe is drained for now even though we
			// didn't see EAGAIN (can happen depending on kernel buffering).
			return nil
		}
	}
}

func finalNonBlockingPass(streams []*streamSlot) error {
	for _, s := range streams {
		if s.closed {
			continue
		}
		if err := drainReady(s, unix.POLLIN); err != nil {
			return err
		}
	}
	return nil
}
