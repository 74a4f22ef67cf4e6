// Package diag renders error chains as strings for operator-facing
// diagnostics (the diagnostics request logger's error fields), adapted from
// the teacher's pkg/fmtt error printer.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// ErrChain renders err and everything errors.Unwrap reaches as a
// "[n] %T: %v" line per layer, the same shape the teacher's console
// debug tool prints, but returned as a string for logging rather than
// written directly to stdout.
func ErrChain(err error) string {
	if err == nil {
		return "<nil>"
	}

	var b strings.Builder
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		fmt.Fprintf(&b, "[%d] %T: %v\n", i, e, e)
	}
	return b.String()
}

// ErrChainDebug is ErrChain plus a spew.Sdump of each layer, used by the
// diagnostics request logger's verbose (dev mode) error field.
func ErrChainDebug(err error) string {
	if err == nil {
		return "<nil>"
	}

	var b strings.Builder
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		fmt.Fprintf(&b, "[%d] %T\n", i, e)
		fmt.Fprintf(&b, "    Error(): %v\n", e)
		b.WriteString(indent(spew.Sdump(e)))
	}
	return b.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
