//go:build unix

package spawn

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ResolveExecutable implements spec.md §4.3 step 1: if Path contains a
// directory separator it is used verbatim (existence is checked so a bad
// path fails fast as ExecutableNotFound rather than surfacing as a generic
// SpawnFailed from execve); otherwise PATH is searched in order.
func ResolveExecutable(path string) (string, error) {
	if strings.ContainsRune(path, os.PathSeparator) {
		if err := checkExecutable(path); err != nil {
			return "", err
		}
		return path, nil
	}

	pathEnv := os.Getenv("PATH")
	if pathEnv == "" {
		// POSIX default search path when PATH is unset.
		pathEnv = "/usr/bin:/bin"
	}

	var lastErr error
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, path)
		if err := checkExecutable(candidate); err == nil {
			return candidate, nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = syscall.ENOENT
	}
	return "", lastErr
}

func checkExecutable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return syscall.EISDIR
	}
	if fi.Mode()&0o111 == 0 {
		return syscall.EACCES
	}
	return nil
}

// Start performs the fork+exec described in spec.md §4.3 step 3.
//
// This package deliberately does not hand-roll fork(2)/execve(2) plus a
// custom close-on-exec error pipe: that protocol is exactly what the Go
// runtime's fork/exec glue (exposed publicly as syscall.ForkExec) already
// implements, including the topological dup2 ordering needed when two
// stdio slots name the same source descriptor (spec.md §9 "Same-handle
// stdio"), the ForkLock discipline that keeps concurrent fd creation from
// leaking into the child, and closing everything else above fd 2. Calling
// it directly is the idiomatic Go way to reach this syscall boundary. There
// is no posix_spawn path: every launch goes through syscall.ForkExec.
//
// stdioFds are already-resolved, already-owned-by-someone raw fds for
// stdin/stdout/stderr in that order; they become fd 0/1/2 in the child.
func Start(spec Spec, stdioFds [3]int, setpgid bool) (Result, string, error) {
	resolved, err := ResolveExecutable(spec.Path)
	if err != nil {
		return Result{}, "resolve", err
	}

	attr := &syscall.ProcAttr{
		Dir:   spec.Dir,
		Env:   spec.Env,
		Files: []uintptr{uintptr(stdioFds[0]), uintptr(stdioFds[1]), uintptr(stdioFds[2])},
		Sys: &syscall.SysProcAttr{
			Setpgid: setpgid,
		},
	}

	argv0 := resolved
	pid, err := syscall.ForkExec(argv0, spec.Argv, attr)
	if err != nil {
		return Result{}, "forkexec", fmt.Errorf("%s: %w", argv0, err)
	}

	return Result{Pid: pid}, "", nil
}
