// Package spawn implements C3, the launcher: resolving the executable and
// handing a fully-materialized stdio triple to the platform's process
// creation primitive (spec.md §4.3).
package spawn

// Spec is the platform-agnostic shape the launcher consumes. Stdio
// materialization (Inherit/Null/OwnedPipe/Borrowed resolution into raw
// handles) has already happened by the time a Spec is built; spawn only
// deals in raw handles.
type Spec struct {
	Path string
	Argv []string
	Env  []string // "KEY=VALUE" pairs; nil means inherit parent's environment
	Dir  string    // empty means inherit parent's working directory
}

// Result is what a successful platform spawn hands back to the caller,
// which wraps it into a ChildProcess (C5).
type Result struct {
	Pid int
}
