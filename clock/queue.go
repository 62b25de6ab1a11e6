package clock

import (
	"container/heap"
	"time"
)

type entry struct {
	id    uint64
	at    time.Duration
	fn    func()
	index int
}

// timerQueue is a min-heap on (at, id), so callbacks due at the same time run
// in registration order.
type timerQueue struct {
	items []*entry
	byID  map[uint64]*entry
	next  uint64
}

func newTimerQueue() *timerQueue {
	return &timerQueue{byID: make(map[uint64]*entry)}
}

func (q *timerQueue) Len() int { return len(q.items) }

func (q *timerQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.at != b.at {
		return a.at < b.at
	}
	return a.id < b.id
}

func (q *timerQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *timerQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(q.items)
	q.items = append(q.items, e)
}

func (q *timerQueue) Pop() any {
	n := len(q.items)
	e := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	e.index = -1
	return e
}

func (q *timerQueue) add(at time.Duration, fn func()) uint64 {
	q.next++
	e := &entry{id: q.next, at: at, fn: fn}
	heap.Push(q, e)
	q.byID[e.id] = e
	return e.id
}

func (q *timerQueue) remove(id uint64) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(q, e.index)
	delete(q.byID, id)
	return true
}

func (q *timerQueue) peek() *entry {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// popDue removes and returns the earliest entry if it is due at now.
func (q *timerQueue) popDue(now time.Duration) *entry {
	e := q.peek()
	if e == nil || e.at > now {
		return nil
	}
	heap.Pop(q)
	delete(q.byID, e.id)
	return e
}
