// Package pipeio creates anonymous unidirectional pipes with the
// inheritability flags each platform requires for a child's stdio, per
// spec.md §4.2.
package pipeio

// Direction indicates which end of a pipe the child will use.
type Direction int

const (
	// ChildReads means the pipe is wired so the child reads from it
	// (used for the child's stdin: parent writes, child reads).
	ChildReads Direction = iota
	// ChildWrites means the pipe is wired so the child writes to it
	// (used for the child's stdout/stderr: child writes, parent reads).
	ChildWrites
)
