package tube

import "container/list"

// waiter is one blocked take call. Delivery sends exactly one task on ch
// under the tube mutex; the buffer guarantees the send never blocks even
// if the waiter has already given up.
type waiter struct {
	ch chan Task
	el *list.Element
}

// waiterList keeps blocked take calls in arrival order.
type waiterList struct {
	l *list.List
}

func newWaiterList() *waiterList { return &waiterList{l: list.New()} }

func (w *waiterList) Len() int { return w.l.Len() }

func (w *waiterList) Add() *waiter {
	wt := &waiter{ch: make(chan Task, 1)}
	wt.el = w.l.PushBack(wt)
	return wt
}

// PopFront returns the oldest waiter, removing it from the list.
func (w *waiterList) PopFront() (*waiter, bool) {
	front := w.l.Front()
	if front == nil {
		return nil, false
	}
	wt := front.Value.(*waiter)
	w.l.Remove(front)
	wt.el = nil
	return wt, true
}

// Remove detaches the waiter if it is still queued. Returns false when the
// waiter was already popped for delivery, meaning a task is (or will be)
// in its channel.
func (w *waiterList) Remove(wt *waiter) bool {
	if wt.el == nil {
		return false
	}
	w.l.Remove(wt.el)
	wt.el = nil
	return true
}
