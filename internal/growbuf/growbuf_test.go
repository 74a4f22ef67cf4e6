package growbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndCommitRoundTrip(t *testing.T) {
	b := New(0)
	buf, ok := b.AppendReadSpace(5)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(buf), 5)

	n := copy(buf, []byte("hello"))
	b.Commit(n)
	require.Equal(t, "hello", string(b.Bytes()))
}

func TestGrowsAcrossManySmallWrites(t *testing.T) {
	b := New(0)
	var want []byte
	for i := 0; i < 10000; i++ {
		chunk := []byte{byte(i % 256)}
		buf, ok := b.AppendReadSpace(1)
		require.True(t, ok)
		n := copy(buf, chunk)
		b.Commit(n)
		want = append(want, chunk...)
	}
	require.Equal(t, want, b.Bytes())
}

func TestCapEnforced(t *testing.T) {
	b := &Buffer{Buf: make([]byte, MaxStreamBytes), Count: MaxStreamBytes}
	require.True(t, b.Full())

	_, ok := b.AppendReadSpace(1)
	require.False(t, ok)
}

func TestFullAtExactBoundary(t *testing.T) {
	b := New(0)
	buf, ok := b.AppendReadSpace(MaxStreamBytes)
	require.True(t, ok)
	require.Len(t, buf, MaxStreamBytes)

	b.Commit(MaxStreamBytes)
	require.True(t, b.Full())

	_, ok = b.AppendReadSpace(1)
	require.False(t, ok)
}
