package procexec

import "github.com/edirooss/procexec/internal/growbuf"

// MaxStreamBytes bounds how large a single stream's buffer may grow during
// a Drain call (see internal/growbuf for the amortized growth policy this
// enforces).
const MaxStreamBytes = growbuf.MaxStreamBytes

// GrowBuffer is a growable byte buffer with the single amortized growth
// policy that both the Unix and Windows multiplexer implementations use for
// each stream. Drain does not accept a GrowBuffer from the caller: it
// allocates its own buffers on every call and returns their contents in a
// DrainResult.
//
// Count is always <= len(Buf). Callers slice Buf[:Count] to get the bytes
// written so far; the buffer is never truncated or compacted.
type GrowBuffer = growbuf.Buffer

// NewGrowBuffer returns a buffer pre-sized to hint bytes (0 is fine; the
// first grow step will allocate minGrowStep).
func NewGrowBuffer(hint int) *GrowBuffer { return growbuf.New(hint) }
