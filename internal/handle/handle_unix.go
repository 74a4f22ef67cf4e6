//go:build unix

package handle

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Invalid is the sentinel raw value for a Handle that holds nothing.
const Invalid = -1

// Handle is an owning or borrowed reference to a Unix file descriptor.
//
// Invariant: at most one owner at a time. Release closes the descriptor
// exactly once when kind is Owned; it is a no-op for Borrowed handles and
// for an already-Invalid raw value.
type Handle struct {
	mu   sync.Mutex
	raw  int
	kind Kind
}

// New wraps an existing fd. kind determines whether Release closes it.
func New(fd int, kind Kind) *Handle {
	return &Handle{raw: fd, kind: kind}
}

// Raw returns the underlying fd for use in syscalls. Callers must not close
// it directly; use Release.
func (h *Handle) Raw() int {
	if h == nil {
		return Invalid
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.raw
}

// Owned reports whether Release will close the underlying fd.
func (h *Handle) Owned() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind == Owned
}

// Disown converts an Owned handle into a Borrowed one without closing it,
// used when ownership is handed to the child across fork/exec.
func (h *Handle) Disown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kind = Borrowed
}

// Release closes the fd if owned. Safe to call multiple times, safe to call
// from a finalizer. Close failures are swallowed by design; callers that
// need to observe them should check unix.Close themselves before Release.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.kind != Owned || h.raw == Invalid {
		return
	}
	_ = unix.Close(h.raw)
	h.raw = Invalid
}
