package supervisor

import (
	"fmt"
	"sync"
)

// UnitID identifies a supervised unit independently of its OS pid (which
// can be recycled by the kernel the moment a child is reaped).
type UnitID int64

// unitIDAllocator hands out UnitIDs from a monotonic, wrap-around space,
// adapted from the teacher's PID allocator: hand out the current cursor
// then advance it, skip in-use, panic only once the whole space is
// exhausted.
type unitIDAllocator struct {
	mu     sync.Mutex
	next   UnitID
	inUse  map[UnitID]struct{}
	idMax  UnitID
}

func newUnitIDAllocator() *unitIDAllocator {
	return &unitIDAllocator{
		next:  1,
		idMax: 1 << 20,
		inUse: make(map[UnitID]struct{}),
	}
}

func (a *unitIDAllocator) alloc() UnitID {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for {
		id := a.next
		a.next++
		if a.next > a.idMax {
			a.next = 1
		}

		if _, used := a.inUse[id]; !used {
			a.inUse[id] = struct{}{}
			return id
		}

		if a.next == start {
			panic(fmt.Sprintf("supervisor: unit id space exhausted: 1..%d fully allocated", a.idMax))
		}
	}
}

func (a *unitIDAllocator) release(id UnitID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, id)
}
