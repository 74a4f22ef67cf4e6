//go:build windows

package pipeio

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/edirooss/procexec/internal/handle"
)

// End is one side of an anonymous pipe.
type End struct {
	H *handle.Handle
}

// Pipe is a pair of handles: the parent-side end (kept non-inheritable) and
// the child-side end (marked inheritable, handed to CreateProcessW, closed
// in the parent immediately after a successful spawn).
type Pipe struct {
	Parent End
	Child  End
}

// New creates an anonymous pipe with CreatePipe, then explicitly clears
// inheritance on the parent-side end and marks the child-side end
// inheritable via SetHandleInformation — spec.md §3's "only the end that
// the child inherits marked inheritable".
func New(direction Direction) (Pipe, error) {
	sa := &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		InheritHandle:      1,
		SecurityDescriptor: nil,
	}

	var readH, writeH windows.Handle
	if err := windows.CreatePipe(&readH, &writeH, sa, 0); err != nil {
		return Pipe{}, fmt.Errorf("pipeio: CreatePipe: %w", err)
	}

	readEnd := End{H: handle.New(readH, handle.Owned)}
	writeEnd := End{H: handle.New(writeH, handle.Owned)}

	var parent, child End
	if direction == ChildReads {
		parent, child = writeEnd, readEnd
	} else {
		parent, child = readEnd, writeEnd
	}

	// CreatePipe made both ends inheritable (sa.InheritHandle=1 above is
	// required so DuplicateHandle/handle-list attachment works below); now
	// strip inheritance from the parent-side end only.
	if err := windows.SetHandleInformation(parent.H.Raw(), windows.HANDLE_FLAG_INHERIT, 0); err != nil {
		parent.H.Release()
		child.H.Release()
		return Pipe{}, fmt.Errorf("pipeio: SetHandleInformation(parent): %w", err)
	}
	if err := windows.SetHandleInformation(child.H.Raw(), windows.HANDLE_FLAG_INHERIT, windows.HANDLE_FLAG_INHERIT); err != nil {
		parent.H.Release()
		child.H.Release()
		return Pipe{}, fmt.Errorf("pipeio: SetHandleInformation(child): %w", err)
	}

	return Pipe{Parent: parent, Child: child}, nil
}
