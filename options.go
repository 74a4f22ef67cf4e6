package procexec

import "github.com/edirooss/procexec/internal/handle"

// StdioKind selects how one of the child's three standard stream slots is
// wired, per spec.md §3.
type StdioKind int

const (
	// StdioInherit passes the parent's own standard handle through.
	StdioInherit StdioKind = iota
	// StdioNull redirects to the platform null device (/dev/null, NUL).
	StdioNull
	// StdioOwnedPipe wires an anonymous pipe created by MakePipe; the
	// child-side end is owned by the launcher and closed in the parent
	// immediately after a successful spawn.
	StdioOwnedPipe
	// StdioBorrowed wires a caller-supplied handle that is never closed or
	// taken ownership of by this package. The same handle may legally
	// appear in more than one slot (e.g. a socketpair used as both stdin
	// and stdout).
	StdioBorrowed
)

// Stdio describes one of the child's three standard stream endpoints.
type Stdio struct {
	Kind StdioKind

	// Pipe is set when Kind == StdioOwnedPipe; it must come from MakePipe
	// with a Direction matching the slot (stdin: ChildReads; stdout/stderr:
	// ChildWrites).
	Pipe *Pipe

	// Borrowed is set when Kind == StdioBorrowed.
	Borrowed *handle.Handle
}

// StartOptions configures a child process launch (spec.md §3).
//
// Argument tokenization and environment assembly are explicit external
// collaborators (spec.md §1): callers hand over an already-tokenized Argv
// and an already-resolved Env, this package does no shell parsing and no
// environment-inheritance bookkeeping beyond "nil means inherit".
type StartOptions struct {
	// Path is the executable. On Unix, if it contains a directory
	// separator it is used verbatim; otherwise it is resolved against PATH.
	// On Windows Path is not used: CreateProcessW takes the executable from
	// the first token of the command line built from Argv, with its own
	// search rules.
	Path string

	// Argv is the full, ordered argument vector including argv[0].
	Argv []string

	// Env is the child's environment. A nil map means "inherit the
	// parent's environment unchanged".
	Env map[string]string

	// Dir is the child's working directory. Empty means "inherit".
	Dir string

	// Stdin, Stdout, Stderr configure the three stdio slots.
	Stdin, Stdout, Stderr Stdio
}
