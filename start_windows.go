//go:build windows

package procexec

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/edirooss/procexec/internal/handle"
	"github.com/edirooss/procexec/internal/procwait"
	"github.com/edirooss/procexec/internal/spawn"
)

// Start launches a child process per the given StartOptions (spec.md §3,
// §4.3).
func Start(opts StartOptions) (*ChildProcess, error) {
	stdinH, stdinPipe, stdinNull, err := materializeStdioWindows(opts.Stdin, windows.Handle(windows.Stdin))
	if err != nil {
		return nil, err
	}
	stdoutH, stdoutPipe, stdoutNull, err := materializeStdioWindows(opts.Stdout, windows.Handle(windows.Stdout))
	if err != nil {
		closeNull(stdinNull)
		return nil, err
	}
	stderrH, stderrPipe, stderrNull, err := materializeStdioWindows(opts.Stderr, windows.Handle(windows.Stderr))
	if err != nil {
		closeNull(stdinNull)
		closeNull(stdoutNull)
		return nil, err
	}

	env := envSliceFromMap(opts.Env)

	spec := spawn.Spec{Path: opts.Path, Argv: opts.Argv, Env: env, Dir: opts.Dir}
	res, processHandle, job, stage, err := spawn.Start(spec, [3]windows.Handle{stdinH, stdoutH, stderrH})

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

	waiter := procwait.NewWaiter(res.Pid, processHandle)

	return &ChildProcess{
		pid:        res.Pid,
		waiter:     waiter,
		stdinPipe:  stdinPipe,
		stdoutPipe: stdoutPipe,
		stderrPipe: stderrPipe,
		job:        job,
	}, nil
}

// materializeStdioWindows resolves a Stdio slot into a HANDLE to hand to
// spawn.Start, plus the parent-side *Pipe (for StdioOwnedPipe) and any NUL
// device handle opened for StdioNull that the caller must close after the
// spawn attempt regardless of success.
func materializeStdioWindows(s Stdio, stdHandle windows.Handle) (h windows.Handle, parentPipe *Pipe, nullHandle *handle.Handle, err error) {
	switch s.Kind {
	case StdioInherit:
		return stdHandle, nil, nil, nil

	case StdioNull:
		name, uerr := windows.UTF16PtrFromString("NUL")
		if uerr != nil {
			return 0, nil, nil, fmt.Errorf("procexec: %w", uerr)
		}
		sa := &windows.SecurityAttributes{InheritHandle: 1}
		nh, oerr := windows.CreateFile(
			name,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
			sa,
			windows.OPEN_EXISTING,
			0,
			0,
		)
		if oerr != nil {
			return 0, nil, nil, fmt.Errorf("procexec: open NUL: %w", oerr)
		}
		return nh, nil, handle.New(nh, handle.Owned), nil

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
