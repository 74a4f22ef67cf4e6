//go:build windows

package handle

import (
	"sync"

	"golang.org/x/sys/windows"
)

// Invalid mirrors windows.InvalidHandle for zero-value safety.
var Invalid = windows.InvalidHandle

// Handle is an owning or borrowed reference to a Windows HANDLE.
type Handle struct {
	mu   sync.Mutex
	raw  windows.Handle
	kind Kind
}

// New wraps an existing HANDLE. kind determines whether Release closes it.
func New(h windows.Handle, kind Kind) *Handle {
	return &Handle{raw: h, kind: kind}
}

// Raw returns the underlying HANDLE for use in syscalls.
func (h *Handle) Raw() windows.Handle {
	if h == nil {
		return Invalid
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.raw
}

// Owned reports whether Release will close the underlying HANDLE.
func (h *Handle) Owned() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind == Owned
}

// Disown converts an Owned handle into a Borrowed one without closing it.
func (h *Handle) Disown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kind = Borrowed
}

// Release closes the HANDLE if owned. Idempotent and finalizer-safe.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.kind != Owned || h.raw == Invalid || h.raw == 0 {
		return
	}
	_ = windows.CloseHandle(h.raw)
	h.raw = Invalid
}
