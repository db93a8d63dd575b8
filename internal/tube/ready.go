package tube

import "container/list"

// readyQueue keeps the ids of ready tasks in FIFO order with O(1)
// removal by id.
type readyQueue struct {
	l    *list.List
	byID map[uint64]*list.Element
}

func newReadyQueue() *readyQueue {
	return &readyQueue{l: list.New(), byID: make(map[uint64]*list.Element)}
}

func (q *readyQueue) Len() int { return q.l.Len() }

func (q *readyQueue) PushBack(id uint64) {
	if _, ok := q.byID[id]; ok {
		return
	}
	q.byID[id] = q.l.PushBack(id)
}

// PushFront requeues an id at the head. Used when a delivered task was
// never observed by its consumer.
func (q *readyQueue) PushFront(id uint64) {
	if _, ok := q.byID[id]; ok {
		return
	}
	q.byID[id] = q.l.PushFront(id)
}

// PopFront removes and returns the head id.
func (q *readyQueue) PopFront() (uint64, bool) {
	front := q.l.Front()
	if front == nil {
		return 0, false
	}
	id := front.Value.(uint64)
	q.l.Remove(front)
	delete(q.byID, id)
	return id, true
}

func (q *readyQueue) Remove(id uint64) bool {
	el, ok := q.byID[id]
	if !ok {
		return false
	}
	q.l.Remove(el)
	delete(q.byID, id)
	return true
}
