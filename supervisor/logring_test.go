package supervisor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogRingReadNewestFirst(t *testing.T) {
	r := new(logRing)
	r.Append("one")
	r.Append("two")
	r.Append("three")

	require.Equal(t, []string{"three", "two", "one"}, r.Read(0))
	require.Equal(t, []string{"three", "two"}, r.Read(2))
}

func TestLogRingWrapsPastCapacity(t *testing.T) {
	r := new(logRing)
	for i := 0; i < logRingCapacity+10; i++ {
		r.Append(fmt.Sprintf("line-%d", i))
	}

	lines := r.Read(0)
	require.Len(t, lines, logRingCapacity)
	// The newest line is the last one appended; the oldest 10 lines were
	// overwritten.
	require.Equal(t, fmt.Sprintf("line-%d", logRingCapacity+9), lines[0])
	require.Equal(t, "line-10", lines[len(lines)-1])
}

func TestLogRingAppendLinesSplitsOnNewline(t *testing.T) {
	r := new(logRing)
	r.AppendLines([]byte("alpha\nbeta\ngamma"))

	require.Equal(t, []string{"gamma", "beta", "alpha"}, r.Read(0))
}

func TestLogRegistryLazyCreatesAndDrops(t *testing.T) {
	reg := newLogRegistry()
	a := reg.get(1)
	b := reg.get(1)
	require.Same(t, a, b)

	reg.drop(1)
	c := reg.get(1)
	require.NotSame(t, a, c)
}
