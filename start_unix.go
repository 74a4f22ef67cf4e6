//go:build unix

package procexec

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/edirooss/procexec/internal/handle"
	"github.com/edirooss/procexec/internal/procwait"
	"github.com/edirooss/procexec/internal/spawn"
)

// Start launches a child process per the given StartOptions (spec.md §3,
// §4.3).
func Start(opts StartOptions) (*ChildProcess, error) {
	stdinFd, stdinPipe, stdinNull, err := materializeStdioUnix(opts.Stdin, 0)
	if err != nil {
		return nil, err
	}
	stdoutFd, stdoutPipe, stdoutNull, err := materializeStdioUnix(opts.Stdout, 1)
	if err != nil {
		closeNull(stdinNull)
		return nil, err
	}
	stderrFd, stderrPipe, stderrNull, err := materializeStdioUnix(opts.Stderr, 2)
	if err != nil {
		closeNull(stdinNull)
		closeNull(stdoutNull)
		return nil, err
	}

	env := envSliceFromMap(opts.Env)

	spec := spawn.Spec{Path: opts.Path, Argv: opts.Argv, Env: env, Dir: opts.Dir}
	res, stage, err := spawn.Start(spec, [3]int{stdinFd, stdoutFd, stderrFd}, true)

	// The launcher's copies of the child-side pipe ends and any /dev/null
	// fds are no longer needed in the parent regardless of outcome: fork
	// has already duplicated the whole table for the child (or never ran).
	closeChildSideIfOwned(opts.Stdin)
	closeChildSideIfOwned(opts.Stdout)
	closeChildSideIfOwned(opts.Stderr)
	closeNull(stdinNull)
	closeNull(stdoutNull)
	closeNull(stderrNull)

	if err != nil {
		if stage == "resolve" {
			return nil, &ExecutableNotFoundError{Path: opts.Path, Err: err}
		}
		return nil, &SpawnFailedError{Stage: stage, Err: err}
	}

	waiter := procwait.NewWaiter(res.Pid)

	return &ChildProcess{
		pid:        res.Pid,
		waiter:     waiter,
		stdinPipe:  stdinPipe,
		stdoutPipe: stdoutPipe,
		stderrPipe: stderrPipe,
	}, nil
}

// materializeStdioUnix resolves a Stdio slot into a raw fd to hand to
// spawn.Start, plus the parent-side *Pipe (for StdioOwnedPipe) and any
// /dev/null handle opened for StdioNull that the caller must close after
// the spawn attempt regardless of success.
func materializeStdioUnix(s Stdio, stdFd int) (fd int, parentPipe *Pipe, nullHandle *handle.Handle, err error) {
	switch s.Kind {
	case StdioInherit:
		return stdFd, nil, nil, nil

	case StdioNull:
		// Opened via the raw syscall rather than os.OpenFile: an *os.File
		// installs a GC finalizer that would close the fd out from under
		// the handle.Handle that's supposed to own it.
		nfd, oerr := unix.Open(os.DevNull, unix.O_RDWR, 0)
		if oerr != nil {
			return 0, nil, nil, fmt.Errorf("procexec: open %s: %w", os.DevNull, oerr)
		}
		h := handle.New(nfd, handle.Owned)
		return nfd, nil, h, nil

	case StdioOwnedPipe:
		if s.Pipe == nil {
			return 0, nil, nil, fmt.Errorf("procexec: StdioOwnedPipe slot with nil Pipe")
		}
		return s.Pipe.inner.Child.H.Raw(), s.Pipe, nil, nil

	case StdioBorrowed:
		if s.Borrowed == nil {
			return 0, nil, nil, fmt.Errorf("procexec: StdioBorrowed slot with nil handle")
		}
		return s.Borrowed.Raw(), nil, nil, nil

	default:
		return 0, nil, nil, fmt.Errorf("procexec: unknown StdioKind %d", s.Kind)
	}
}

func closeChildSideIfOwned(s Stdio) {
	if s.Kind == StdioOwnedPipe && s.Pipe != nil {
		s.Pipe.inner.Child.H.Release()
	}
}

func closeNull(h *handle.Handle) {
	if h != nil {
		h.Release()
	}
}

func envSliceFromMap(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
