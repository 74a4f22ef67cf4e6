package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatorAssignsDistinctIDs(t *testing.T) {
	a := newUnitIDAllocator()
	ids := map[UnitID]struct{}{}
	for i := 0; i < 100; i++ {
		id := a.alloc()
		_, dup := ids[id]
		require.False(t, dup, "duplicate id %d", id)
		ids[id] = struct{}{}
	}
}

func TestAllocatorReusesReleasedIDs(t *testing.T) {
	a := &unitIDAllocator{next: 1, idMax: 2, inUse: make(map[UnitID]struct{})}

	id1 := a.alloc()
	id2 := a.alloc()
	require.ElementsMatch(t, []UnitID{1, 2}, []UnitID{id1, id2})

	a.release(id1)
	id3 := a.alloc()
	require.Equal(t, id1, id3)
}

func TestAllocatorPanicsWhenSpaceExhausted(t *testing.T) {
	a := &unitIDAllocator{next: 1, idMax: 2, inUse: make(map[UnitID]struct{})}
	a.alloc()
	a.alloc()

	require.Panics(t, func() { a.alloc() })
}
