//go:build windows

package iomux

import (
	"time"

	"golang.org/x/sys/windows"

	"github.com/edirooss/procexec/internal/growbuf"
	"github.com/edirooss/procexec/internal/procwait"
)

// overlappedStream is one pipe end read via overlapped I/O, with its own
// manual-reset event used as the wait object in WaitForMultipleObjects.
type overlappedStream struct {
	handle   windows.Handle
	name     string
	buf      *growbuf.Buffer
	event    windows.Handle
	ov       *windows.Overlapped
	pending  bool // a ReadFile is currently outstanding
	closed   bool
	pendBuf  []byte // the slice the pending ReadFile targets
}

// Drain multiplexes overlapped reads from stdout and stderr with waiting on
// the process handle, the Windows analogue of the Unix poll loop (spec.md
// §4.4). Each stream gets its own event so WaitForMultipleObjects can
// distinguish "stdout ready" from "stderr ready" from "process exited".
func Drain(stdoutH, stderrH windows.Handle, waiter *procwait.Waiter, processHandle windows.Handle, timeout time.Duration) (Result, error) {
	stdout, err := newOverlappedStream(stdoutH, "stdout")
	if err != nil {
		return Result{}, &ErrPollFailed{Err: err}
	}
	defer stdout.closeEvent()

	stderr, err := newOverlappedStream(stderrH, "stderr")
	if err != nil {
		return Result{Stdout: stdout.buf}, &ErrPollFailed{Err: err}
	}
	defer stderr.closeEvent()

	streams := []*overlappedStream{stdout, stderr}

	deadline, infinite := procwait.Deadline(timeout)
	exited := false

	for {
		if allOverlappedClosed(streams) && exited {
			break
		}

		for _, s := range streams {
			if !s.closed && !s.pending {
				if err := s.startRead(); err != nil {
					return partial(stdout, stderr), err
				}
			}
		}

		handles := make([]windows.Handle, 0, 3)
		idx := make([]*overlappedStream, 0, 2)
		for _, s := range streams {
			if !s.closed {
				handles = append(handles, s.event)
				idx = append(idx, s)
			}
		}
		var procIdx = -1
		if !exited {
			procIdx = len(handles)
			handles = append(handles, processHandle)
		}
		if len(handles) == 0 {
			break
		}

		waitMs, expired := overlappedWaitMs(deadline, infinite)
		if expired {
			return partial(stdout, stderr), ErrTimeout
		}

		ev, err := windows.WaitForMultipleObjects(handles, false, waitMs)
		if ev == uint32(windows.WAIT_TIMEOUT) {
			if infinite {
				continue
			}
			return partial(stdout, stderr), ErrTimeout
		}
		if err != nil {
			return partial(stdout, stderr), &ErrPollFailed{Err: err}
		}

		i := int(ev - windows.WAIT_OBJECT_0)
		if procIdx >= 0 && i == procIdx {
			if _, ok, werr := waiter.TryReap(); werr != nil {
				return partial(stdout, stderr), werr
			} else if ok {
				exited = true
			}
			continue
		}
		if i >= 0 && i < len(idx) {
			if err := idx[i].completeRead(); err != nil {
				return partial(stdout, stderr), err
			}
		}

		if exited {
			for _, s := range streams {
				if s.closed || !s.pending {
					continue
				}
				_ = s.completeReadNonBlocking()
			}
			for _, s := range streams {
				if !s.closed {
					windows.CancelIoEx(s.handle, s.ov)
					s.closed = true
				}
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
func partial(stdout, stderr *overlappedStream) Result {
	return Result{Stdout: stdout.buf, Stderr: stderr.buf}
}

func newOverlappedStream(h windows.Handle, name string) (*overlappedStream, error) {
	ev, err := windows.CreateEvent(nil, 1 /* manual reset */, 0, nil)
	if err != nil {
		return nil, err
	}
	return &overlappedStream{
		handle: h,
		name:   name,
		buf:    growbuf.New(readChunk),
		event:  ev,
		ov:     &windows.Overlapped{HEvent: ev},
	}, nil
}

func (s *overlappedStream) closeEvent() {
	if s.event != 0 {
		windows.CloseHandle(s.event)
	}
}

func (s *overlappedStream) startRead() error {
	if s.handle == 0 {
		s.closed = true
		return nil
	}
	space, ok := s.buf.AppendReadSpace(readChunk)
	if !ok {
		return &ErrBufferLimit{Stream: s.name}
	}
	s.pendBuf = space
	*s.ov = windows.Overlapped{HEvent: s.event}

	var done uint32
	err := windows.ReadFile(s.handle, space, &done, s.ov)
	if err == nil {
		// Completed synchronously: commit immediately rather than waiting
		// on an event that may not be signaled until the next I/O.
		if done == 0 {
			s.closed = true
			return nil
		}
		s.buf.Commit(int(done))
		return nil
	}
	if err == windows.ERROR_IO_PENDING {
		s.pending = true
		return nil
	}
	if isPipeEOF(err) {
		s.closed = true
		return nil
	}
	return &ErrPollFailed{Err: err}
}

func (s *overlappedStream) completeRead() error {
	var n uint32
	err := windows.GetOverlappedResult(s.handle, s.ov, &n, false)
	s.pending = false
	if err != nil {
		if isPipeEOF(err) {
			s.closed = true
			return nil
		}
		return &ErrPollFailed{Err: err}
	}
	if n == 0 {
		s.closed = true
		return nil
	}
	s.buf.Commit(int(n))
	return nil
}

// completeReadNonBlocking is used during the post-exit final pass: it
// checks a pending overlapped read without having waited on its event,
// since the loop is winding down regardless of outcome.
func (s *overlappedStream) completeReadNonBlocking() error {
	var n uint32
	err := windows.GetOverlappedResult(s.handle, s.ov, &n, false)
	s.pending = false
	if err != nil {
		if isPipeEOF(err) || err == windows.ERROR_IO_INCOMPLETE {
			return nil
		}
		return &ErrPollFailed{Err: err}
	}
	s.buf.Commit(int(n))
	return nil
}

func isPipeEOF(err error) bool {
	switch err {
	case windows.ERROR_HANDLE_EOF, windows.ERROR_BROKEN_PIPE, windows.ERROR_PIPE_NOT_CONNECTED:
		return true
	default:
		return false
	}
}

func allOverlappedClosed(streams []*overlappedStream) bool {
	for _, s := range streams {
		if !s.closed {
			return false
		}
	}
	return true
}

func overlappedWaitMs(deadline time.Time, infinite bool) (ms uint32, expired bool) {
	if infinite {
		return windows.INFINITE, false
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, true
	}
	ms = uint32(remaining / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	return ms, false
}
