package tube

import (
	"container/heap"
	"time"
)

// timeIndex is a min-heap of task ids ordered by a deadline, with O(log n)
// removal by id. It backs both the wake index (to_send_at) and the expiry
// index (valid_until).
type timeIndex struct {
	entries timeHeap
	byID    map[uint64]*timeEntry
}

type timeEntry struct {
	at  time.Time
	id  uint64
	pos int
}

func newTimeIndex() *timeIndex {
	return &timeIndex{byID: make(map[uint64]*timeEntry)}
}

func (x *timeIndex) Len() int { return len(x.entries) }

// Add inserts or reschedules the id at the given deadline.
func (x *timeIndex) Add(id uint64, at time.Time) {
	if e, ok := x.byID[id]; ok {
		e.at = at
		heap.Fix(&x.entries, e.pos)
		return
	}
	e := &timeEntry{at: at, id: id}
	x.byID[id] = e
	heap.Push(&x.entries, e)
}

// Remove drops the id from the index if present.
func (x *timeIndex) Remove(id uint64) bool {
	e, ok := x.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&x.entries, e.pos)
	delete(x.byID, id)
	return true
}

// PopDue removes and returns the id with the earliest deadline if that
// deadline is at or before now.
func (x *timeIndex) PopDue(now time.Time) (uint64, bool) {
	if len(x.entries) == 0 {
		return 0, false
	}
	head := x.entries[0]
	if head.at.After(now) {
		return 0, false
	}
	heap.Pop(&x.entries)
	delete(x.byID, head.id)
	return head.id, true
}

type timeHeap []*timeEntry

func (h timeHeap) Len() int           { return len(h) }
func (h timeHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h timeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *timeHeap) Push(v any) {
	e := v.(*timeEntry)
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *timeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
