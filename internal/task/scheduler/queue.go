package scheduler

import (
	"container/heap"
	"time"

	"scriptsched/internal/task"
)

// deadline is one armed timer. index is maintained by the heap so a
// cancelled task can be removed in O(log n).
type deadline struct {
	id    task.ID
	at    time.Time
	seq   uint64
	index int
}

// deadlineQueue implements heap.Interface ordered by time, then by arming
// order so tasks with the same deadline start in the order they were added.
type deadlineQueue []*deadline

func (q deadlineQueue) Len() int { return len(q) }

func (q deadlineQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q deadlineQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *deadlineQueue) Push(x any) {
	d := x.(*deadline)
	d.index = len(*q)
	*q = append(*q, d)
}

func (q *deadlineQueue) Pop() any {
	old := *q
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.index = -1
	*q = old[:n-1]
	return d
}

func (q deadlineQueue) peek() *deadline {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// remove drops d if it is still queued.
func (q *deadlineQueue) remove(d *deadline) {
	if d == nil || d.index < 0 || d.index >= len(*q) || (*q)[d.index] != d {
		return
	}
	heap.Remove(q, d.index)
}
