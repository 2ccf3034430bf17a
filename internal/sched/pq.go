package sched

import "container/heap"

// pqEntry pairs a priority with its payload; higher priority dequeues
// first, ties broken by insertion order (FIFO), mirroring the stability
// guarantee `FastPriorityQueue` gives the original scheduler.
type pqEntry[T any] struct {
	priority uint8
	seq      uint64
	value    T
}

type pqHeap[T any] []*pqEntry[T]

func (h pqHeap[T]) Len() int { return len(h) }
func (h pqHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // max-heap: higher priority first
	}
	return h[i].seq < h[j].seq
}
func (h pqHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pqHeap[T]) Push(x any)   { *h = append(*h, x.(*pqEntry[T])) }
func (h *pqHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// PriorityQueue is a FIFO-stable max-priority queue: the Go analogue of
// the original's `FastPriorityQueue<Priority, T>`.
type PriorityQueue[T any] struct {
	h       pqHeap[T]
	nextSeq uint64
}

// NewPriorityQueue returns an empty PriorityQueue.
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

// Enqueue inserts v at the given priority.
func (q *PriorityQueue[T]) Enqueue(priority uint8, v T) {
	heap.Push(&q.h, &pqEntry[T]{priority: priority, seq: q.nextSeq, value: v})
	q.nextSeq++
}

// Dequeue removes and returns the highest-priority entry, or the zero
// value and false if the queue is empty.
func (q *PriorityQueue[T]) Dequeue() (T, bool) {
	if len(q.h) == 0 {
		var zero T
		return zero, false
	}
	e := heap.Pop(&q.h).(*pqEntry[T])
	return e.value, true
}

// Len reports the number of queued entries.
func (q *PriorityQueue[T]) Len() int { return len(q.h) }
