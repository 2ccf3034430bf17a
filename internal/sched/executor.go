package sched

import (
	"sync"
)

// ExecutorStatus mirrors InspectorStatus one level down: Idle between
// steps, Running while a task is polling, Finished once closed and
// drained.
type ExecutorStatus int

const (
	ExecutorIdle ExecutorStatus = iota
	ExecutorRunning
	ExecutorFinished
)

// Executor is a priority queue of ready tasks plus an identity, matching
// spec.md's C8. Unlike the original's register-snapshot switch-context
// (architecture-specific and meaningless on a hosted simulation), stepping
// a task here is a direct call into Task.Poll — the model has no separate
// stacks to switch between.
type Executor struct {
	mu sync.Mutex

	id       ExecutorID
	priority uint8
	status   ExecutorStatus
	current  TaskID
	closed   bool

	tasks map[TaskID]Task
	queue *PriorityQueue[TaskID]
}

// NewExecutor creates an empty Executor at the given scheduling priority
// (the priority Inspector.RegisterExecutor enqueues it at).
func NewExecutor(priority uint8) *Executor {
	return &Executor{
		id:       newExecutorID(),
		priority: priority,
		tasks:    make(map[TaskID]Task),
		queue:    NewPriorityQueue[TaskID](),
	}
}

// ID returns the executor's identity.
func (e *Executor) ID() ExecutorID { return e.id }

// Priority returns the executor's own scheduling priority within its
// owning Inspector.
func (e *Executor) Priority() uint8 { return e.priority }

// Spawn adds t to the run queue, returning its assigned TaskID.
func (e *Executor) Spawn(t Task) TaskID {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := newTaskID()
	e.tasks[id] = t
	e.queue.Enqueue(t.Priority(), id)
	return id
}

// Close marks the executor as accepting no further tasks: once its queue
// drains to empty (immediately, if it is already empty and no task is
// being polled), it reports Finished so the owning Inspector can
// unregister it. Without an explicit Close, an Executor that happens to
// be momentarily empty is not finished — more tasks may still arrive.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if len(e.tasks) == 0 && e.status != ExecutorRunning {
		e.status = ExecutorFinished
	}
}

// Status reports the executor's current status.
func (e *Executor) Status() ExecutorStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// IsFinished reports whether the executor is closed and drained.
func (e *Executor) IsFinished() bool {
	return e.Status() == ExecutorFinished
}

// CurrentTaskPriority returns the priority of the task currently being
// polled, if any — the value the dispatch policy reads as a hart's load
// component.
func (e *Executor) CurrentTaskPriority() (uint8, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != ExecutorRunning {
		return 0, false
	}
	t, ok := e.tasks[e.current]
	if !ok {
		return 0, false
	}
	return t.Priority(), true
}

// Step dequeues the highest-priority ready task, polls it once, then
// re-queues it (if still pending) or drops it (if finished). Reports
// whether a task was actually run.
func (e *Executor) Step() bool {
	e.mu.Lock()
	id, ok := e.queue.Dequeue()
	if !ok {
		e.mu.Unlock()
		return false
	}
	t := e.tasks[id]
	e.current = id
	e.status = ExecutorRunning
	e.mu.Unlock()

	result := t.Poll()

	e.mu.Lock()
	e.status = ExecutorIdle
	if result == TaskFinished {
		delete(e.tasks, id)
	} else {
		e.queue.Enqueue(t.Priority(), id)
	}
	if len(e.tasks) == 0 && e.closed {
		e.status = ExecutorFinished
	}
	e.mu.Unlock()
	return true
}
