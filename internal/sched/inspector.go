package sched

import (
	"sync"

	"github.com/jrinx/kernelsim/internal/kernerr"
)

// InspectorMode distinguishes the single root Inspector each Runtime
// starts in (Bootstrap) from ordinary nested ones. Only a Bootstrap
// inspector transitions to Finished when its executor set drains — that
// transition is what lets the owning Runtime's outer loop terminate
// (P6). A Normal inspector that drains empty simply idles, waiting for
// more executors to be registered onto it.
type InspectorMode int

const (
	InspectorNormal InspectorMode = iota
	InspectorBootstrap
)

// InspectorStatus is the outcome of one Inspector.Run iteration.
type InspectorStatus int

const (
	InspectorIdle InspectorStatus = iota
	InspectorRunning
	InspectorFinished
)

// Inspector is a priority queue of Executors, matching spec.md's C9. It
// owns no tasks directly — every Step call runs exactly one Executor.Step
// on the highest-priority ready executor, then reschedules or retires it.
type Inspector struct {
	mu sync.Mutex

	id      InspectorID
	mode    InspectorMode
	status  InspectorStatus
	current ExecutorID

	executors map[ExecutorID]*Executor
	queue     *PriorityQueue[ExecutorID]
}

// NewInspector creates an empty Inspector in the given mode.
func NewInspector(mode InspectorMode) *Inspector {
	return &Inspector{
		id:        newInspectorID(),
		mode:      mode,
		executors: make(map[ExecutorID]*Executor),
		queue:     NewPriorityQueue[ExecutorID](),
	}
}

// ID returns the inspector's identity.
func (i *Inspector) ID() InspectorID { return i.id }

// RegisterExecutor adds e to the run queue at e.Priority(). Returns
// DuplicateExecutorId if e's id is already registered.
func (i *Inspector) RegisterExecutor(e *Executor) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, dup := i.executors[e.id]; dup {
		return kernerr.New(kernerr.DuplicateExecutorId, "executor %d already registered", e.id)
	}
	i.executors[e.id] = e
	i.queue.Enqueue(e.Priority(), e.id)
	return nil
}

// UnregisterExecutor removes a finished executor. Returns InvalidExecutorId
// if id is not currently registered.
func (i *Inspector) UnregisterExecutor(id ExecutorID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.executors[id]; !ok {
		return kernerr.New(kernerr.InvalidExecutorId, "executor %d not registered", id)
	}
	delete(i.executors, id)
	return nil
}

// IsEmpty reports whether the inspector has no registered executors.
func (i *Inspector) IsEmpty() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.executors) == 0
}

// CurrentTaskPriority passes through to the executor currently running,
// if any — the per-hart "what priority is this hart busy with" read the
// dispatch policy relies on.
func (i *Inspector) CurrentTaskPriority() (uint8, bool) {
	i.mu.Lock()
	cur := i.current
	running := i.status == InspectorRunning
	e := i.executors[cur]
	i.mu.Unlock()
	if !running || e == nil {
		return 0, false
	}
	return e.CurrentTaskPriority()
}

// Step runs one scheduling round: pop the highest-priority executor,
// step it once, then requeue it unless it finished, in which case it is
// unregistered (in either mode). A Bootstrap inspector left with no
// executors becomes Finished. Reports whether an executor was actually
// stepped.
//
// Mirrors the original run() loop's single iteration: pick next, switch
// context into it, switch back, then decide next/destroy based on its
// reported status.
func (i *Inspector) Step() bool {
	i.mu.Lock()
	id, ok := i.queue.Dequeue()
	if !ok {
		i.mu.Unlock()
		return false
	}
	e := i.executors[id]
	i.current = id
	i.status = InspectorRunning
	i.mu.Unlock()

	e.Step()

	i.mu.Lock()
	i.status = InspectorIdle
	if e.IsFinished() {
		delete(i.executors, id)
	} else {
		i.queue.Enqueue(e.Priority(), id)
	}
	if len(i.executors) == 0 && i.mode == InspectorBootstrap {
		i.status = InspectorFinished
	}
	i.mu.Unlock()
	return true
}

// IsFinished reports whether the inspector is a drained Bootstrap
// inspector (the only kind that terminates on its own).
func (i *Inspector) IsFinished() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status == InspectorFinished
}

// Run is the inspector's own turn: it keeps stepping executors until
// either switchPending reports a pending switch or the inspector itself
// reaches Finished, matching spec.md §4.9's "while neither a
// switch-pending nor a Finished status is set" loop (the original's
// run() checks the same two conditions at the top of every iteration,
// not just once per call). switchPending is read, not consumed, on each
// iteration — the owning Runtime clears it once after Run returns.
// waitForInterrupt is invoked whenever a round finds nothing ready to
// run, the hosted substitute for the original's WFI instruction.
func (i *Inspector) Run(switchPending func() bool, waitForInterrupt func()) {
	for {
		if (switchPending != nil && switchPending()) || i.IsFinished() {
			return
		}
		if !i.Step() && waitForInterrupt != nil {
			waitForInterrupt()
		}
	}
}
