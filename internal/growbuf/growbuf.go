// Package growbuf implements the single amortized buffer-growth policy
// shared by the public GrowBuffer type and both platform drain loops in
// internal/iomux (spec.md §4.4, "Buffer growth uses a single amortized
// policy").
//
// It lives here rather than in the root package so internal/iomux can share
// it without importing the root package and creating an import cycle.
package growbuf

// MaxStreamBytes bounds how large a single stream's buffer may grow during
// a drain. This resolves the open question in spec.md §9: the source's
// doubling policy had no documented cap, which risks OOM on unbounded child
// output. 256 MiB matches the design note's suggested figure.
const MaxStreamBytes = 256 << 20

// minGrowStep and maxGrowStep bound the amortized growth policy: buffers
// start small, double each time they fill, but a single growth step never
// requests more than maxGrowStep additional bytes so one misbehaving child
// can't force a multi-hundred-megabyte allocation in one jump.
const (
	minGrowStep = 4 << 10  // 4 KiB
	maxGrowStep = 16 << 20 // 16 MiB
)

// Buffer is a caller-owned, growable byte buffer. Count is always
// <= len(Buf); callers slice Buf[:Count] to get the bytes written so far.
// The buffer is never truncated or compacted.
type Buffer struct {
	Buf   []byte
	Count int
}

// New returns a buffer pre-sized to hint bytes (0 is fine; the first grow
// step will allocate minGrowStep).
func New(hint int) *Buffer {
	if hint < 0 {
		hint = 0
	}
	return &Buffer{Buf: make([]byte, hint)}
}

// Bytes returns the bytes written so far.
func (g *Buffer) Bytes() []byte { return g.Buf[:g.Count] }

// ensure grows Buf so that at least n more bytes can be appended starting
// at Count, respecting MaxStreamBytes. Returns false if the grow would
// exceed the cap.
func (g *Buffer) ensure(n int) bool {
	need := g.Count + n
	if need <= len(g.Buf) {
		return true
	}
	if need > MaxStreamBytes {
		return false
	}

	newCap := len(g.Buf)
	if newCap == 0 {
		newCap = minGrowStep
	}
	for newCap < need {
		step := newCap
		if step > maxGrowStep {
			step = maxGrowStep
		}
		newCap += step
	}
	if newCap > MaxStreamBytes {
		newCap = MaxStreamBytes
	}

	grown := make([]byte, newCap)
	copy(grown, g.Buf[:g.Count])
	g.Buf = grown
	return true
}

// AppendReadSpace returns a slice of Buf positioned at Count with at least
// one free byte, growing as needed. ok is false if the stream has hit
// MaxStreamBytes.
func (g *Buffer) AppendReadSpace(want int) (buf []byte, ok bool) {
	if want <= 0 {
		want = minGrowStep
	}
	if !g.ensure(want) {
		if g.Count >= MaxStreamBytes {
			return nil, false
		}
		if !g.ensure(MaxStreamBytes - g.Count) {
			return nil, false
		}
	}
	return g.Buf[g.Count:], true
}

// Commit records that n more bytes at Buf[Count:] were filled by the
// caller's read.
func (g *Buffer) Commit(n int) { g.Count += n }

// Full reports whether the buffer has hit MaxStreamBytes.
func (g *Buffer) Full() bool { return g.Count >= MaxStreamBytes }
