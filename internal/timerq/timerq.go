// Package timerq implements the timed-event queue: a per-hart min-heap of
// pending timeouts, ordered by deadline, that the timer-interrupt path
// drains on every tick.
package timerq

import (
	"container/heap"
	"sync"

	"github.com/jrinx/kernelsim/internal/kernerr"
	"github.com/jrinx/kernelsim/internal/percpu"
)

// Status is the lifecycle state of a single timed event.
type Status int

const (
	StatusPending Status = iota
	StatusTimeout
	StatusCancelled
)

// Handler carries the two callbacks a timed event may fire: OnTimeout runs
// if the deadline is reached; OnCancel runs if Tracker.Cancel wins the
// race against the deadline. Exactly one ever runs.
type Handler struct {
	OnTimeout func()
	OnCancel  func()
}

type event struct {
	deadline int64 // nanoseconds, same clock as the caller's `now`
	seq      uint64
	handler  Handler
	status   Status
	index    int
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	ev := x.(*event)
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// Queue is a single hart's timed-event min-heap.
type Queue struct {
	mu      sync.Mutex
	heap    eventHeap
	nextSeq uint64
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Create schedules handler to fire at deadline (OnTimeout) unless
// cancelled first (OnCancel), returning a Tracker the caller can use to
// cancel it.
func (q *Queue) Create(deadline int64, handler Handler) Tracker {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev := &event{deadline: deadline, seq: q.nextSeq, handler: handler, status: StatusPending}
	q.nextSeq++
	heap.Push(&q.heap, ev)
	return Tracker{q: q, ev: ev}
}

// dropStale pops already-resolved events off the top of the heap so they
// don't linger and shadow the real earliest pending deadline. Must be
// called with q.mu held.
func (q *Queue) dropStale() {
	for len(q.heap) > 0 && q.heap[0].status != StatusPending {
		heap.Pop(&q.heap)
	}
}

// PeekOutdated reports whether the earliest pending event's deadline has
// already passed relative to now, without firing or removing it.
func (q *Queue) PeekOutdated(now int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropStale()
	if len(q.heap) == 0 {
		return false
	}
	return q.heap[0].deadline <= now
}

// NextDeadline returns the earliest pending event's deadline, or false if
// the queue holds no pending events. The timer-interrupt path uses this to
// rearm the next tick (stimecmp) after draining the current one.
func (q *Queue) NextDeadline() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropStale()
	if len(q.heap) == 0 {
		return 0, false
	}
	return q.heap[0].deadline, true
}

// Tick pops every pending event whose deadline is <= now, marks it timed
// out, and fires its OnTimeout callback. Callbacks run after the queue's
// lock is released, so a handler that itself calls Create or Tick on the
// same Queue does not deadlock. Returns the number of events fired.
func (q *Queue) Tick(now int64) int {
	q.mu.Lock()
	var due []*event
	for len(q.heap) > 0 && q.heap[0].deadline <= now {
		ev := heap.Pop(&q.heap).(*event)
		if ev.status != StatusPending {
			continue
		}
		ev.status = StatusTimeout
		due = append(due, ev)
	}
	q.mu.Unlock()

	for _, ev := range due {
		if ev.handler.OnTimeout != nil {
			ev.handler.OnTimeout()
		}
	}
	return len(due)
}

// Tracker lets the creator of a timed event cancel it before it fires.
type Tracker struct {
	q  *Queue
	ev *event
}

// Cancel marks the tracked event cancelled and runs its OnCancel callback.
// Cancelling an already-cancelled event is a no-op (idempotent). Cancelling
// an event that has already timed out returns InvalidTimedEventStatus.
func (t Tracker) Cancel() error {
	t.q.mu.Lock()
	switch t.ev.status {
	case StatusTimeout:
		t.q.mu.Unlock()
		return kernerr.New(kernerr.InvalidTimedEventStatus, "timed-event already fired")
	case StatusCancelled:
		t.q.mu.Unlock()
		return nil
	}
	t.ev.status = StatusCancelled
	t.q.mu.Unlock()

	if t.ev.handler.OnCancel != nil {
		t.ev.handler.OnCancel()
	}
	return nil
}

// Registry holds one Queue per hart, addressed the way percpu.Table
// addresses all other per-hart state in this model.
type Registry struct {
	tbl *percpu.Table[*Queue]
}

// NewRegistry allocates a Queue for each of nHarts harts.
func NewRegistry(nHarts int) *Registry {
	tbl := percpu.New[*Queue](nHarts)
	for i := 0; i < tbl.NHarts(); i++ {
		*tbl.Get(i) = NewQueue()
	}
	return &Registry{tbl: tbl}
}

// Queue returns hart's timed-event queue.
func (r *Registry) Queue(hart int) *Queue {
	return *r.tbl.Get(hart)
}
