package procexec

import "github.com/edirooss/procexec/internal/pipeio"

// PipeDirection indicates whether the child reads from or writes to a pipe
// created by MakePipe.
type PipeDirection = pipeio.Direction

const (
	// ChildReads is used for the child's stdin.
	ChildReads = pipeio.ChildReads
	// ChildWrites is used for the child's stdout/stderr.
	ChildWrites = pipeio.ChildWrites
)

// Pipe is a caller-managed anonymous pipe returned by MakePipe, for callers
// that want to wire stdio slots themselves (spec.md §6, "MakePipe for
// callers that manage pipes themselves").
type Pipe struct {
	inner pipeio.Pipe
}

// MakePipe creates an anonymous unidirectional pipe with platform-correct
// inheritability: the parent-side end is non-inheritable / close-on-exec,
// the child-side end is inheritable (spec.md §4.2).
func MakePipe(direction PipeDirection) (*Pipe, error) {
	p, err := pipeio.New(direction)
	if err != nil {
		return nil, &PipeCreateFailedError{Err: err}
	}
	return &Pipe{inner: p}, nil
}

// Close releases both ends of the pipe. Safe to call after Start has
// closed the child-side end (that end's handle is already released by then
// and Release is a no-op for it).
func (p *Pipe) Close() {
	if p == nil {
		return
	}
	p.inner.Parent.H.Release()
	p.inner.Child.H.Release()
}
