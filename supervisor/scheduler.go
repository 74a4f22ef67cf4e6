package supervisor

import (
	"container/heap"
	"time"
)

// schedEvent is a pending restart for one unit. index is maintained by
// eventHeap for O(log n) container/heap removals, ported from the
// teacher's processmgr/scheduler.go with the PID key widened to UnitID.
type schedEvent struct {
	id    UnitID
	when  time.Time
	index int
}

// scheduler is a min-heap of pending restarts ordered by due time, with an
// index for selective removal (a unit stopped before its restart comes due
// must be descheduled).
type scheduler struct {
	h       eventHeap
	entries map[UnitID]*schedEvent
}

func newScheduler() *scheduler {
	h := eventHeap{}
	heap.Init(&h)
	return &scheduler{
		h:       h,
		entries: make(map[UnitID]*schedEvent),
	}
}

// push schedules id to fire at when, replacing any pending event for id.
func (s *scheduler) push(id UnitID, when time.Time) {
	if old, ok := s.entries[id]; ok {
		heap.Remove(&s.h, old.index)
		delete(s.entries, id)
	}
	ev := &schedEvent{id: id, when: when}
	s.entries[id] = ev
	heap.Push(&s.h, ev)
}

// next returns the soonest pending event without removing it.
func (s *scheduler) next() (id UnitID, when time.Time, ok bool) {
	if len(s.h) == 0 {
		return 0, time.Time{}, false
	}
	ev := s.h[0]
	return ev.id, ev.when, true
}

// pop removes the head event unconditionally.
func (s *scheduler) pop() {
	if len(s.h) == 0 {
		return
	}
	ev := heap.Pop(&s.h).(*schedEvent)
	delete(s.entries, ev.id)
}

// remove cancels the pending restart for id, if any.
func (s *scheduler) remove(id UnitID) {
	ev, ok := s.entries[id]
	if !ok {
		return
	}
	heap.Remove(&s.h, ev.index)
	delete(s.entries, id)
}

// eventHeap is container/heap.Interface over schedEvent, ordered by when.
type eventHeap []*schedEvent

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *eventHeap) Push(x any) {
	ev := x.(*schedEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	ev.index = -1
	*h = old[:n-1]
	return ev
}
