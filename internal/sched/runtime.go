package sched

import (
	"sync"

	"github.com/jrinx/kernelsim/internal/kernerr"
	"github.com/jrinx/kernelsim/internal/percpu"
)

// RuntimeStatus is a hart's coarse scheduling state.
type RuntimeStatus int

const (
	RuntimeInit RuntimeStatus = iota
	RuntimeRunning
	RuntimeEndpoint
)

// Runtime is the per-hart scheduler root, C10. Unlike Executor and
// Inspector it holds no priority among its Inspectors: spec.md never
// ascribes Inspector-level priority to the Runtime the way it does one
// layer down, so the Runtime's registry is a plain FIFO queue, not a
// PriorityQueue.
type Runtime struct {
	mu sync.Mutex

	hart        int
	status      RuntimeStatus
	current     InspectorID
	bootstrapID InspectorID

	inspectors map[InspectorID]*Inspector
	fifo       []InspectorID

	switchPending bool
}

// NewRuntime creates a Runtime for the given hart, pre-registering a
// single Bootstrap inspector so the hart always has somewhere to run.
func NewRuntime(hart int) *Runtime {
	r := &Runtime{
		hart:       hart,
		inspectors: make(map[InspectorID]*Inspector),
	}
	boot := NewInspector(InspectorBootstrap)
	r.inspectors[boot.id] = boot
	r.fifo = append(r.fifo, boot.id)
	r.bootstrapID = boot.id
	return r
}

// Hart returns the hart id this Runtime is bound to.
func (r *Runtime) Hart() int { return r.hart }

// Status reports the runtime's current status.
func (r *Runtime) Status() RuntimeStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Bootstrap returns the root inspector, for callers that want to spawn
// executors onto the hart before or after it starts running. Tracked by
// a dedicated id rather than fifo[0]: Start rotates the FIFO as it runs,
// so the bootstrap inspector's position in it is not fixed.
func (r *Runtime) Bootstrap() *Inspector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inspectors[r.bootstrapID]
}

// RegisterInspector enqueues a non-bootstrap inspector at the back of
// the FIFO. Returns DuplicateInspectorId if already registered.
func (r *Runtime) RegisterInspector(i *Inspector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.inspectors[i.id]; dup {
		return kernerr.New(kernerr.DuplicateInspectorId, "inspector %d already registered", i.id)
	}
	r.inspectors[i.id] = i
	r.fifo = append(r.fifo, i.id)
	return nil
}

// UnregisterInspector removes a finished inspector from the registry and
// FIFO. Returns InvalidInspectorId if not registered.
func (r *Runtime) UnregisterInspector(id InspectorID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inspectors[id]; !ok {
		return kernerr.New(kernerr.InvalidInspectorId, "inspector %d not registered", id)
	}
	delete(r.inspectors, id)
	for idx, v := range r.fifo {
		if v == id {
			r.fifo = append(r.fifo[:idx], r.fifo[idx+1:]...)
			break
		}
	}
	return nil
}

// SetSwitchPending records that the next Inspector.Run should yield back
// to the Runtime as soon as convenient, e.g. because a trap handler
// observed higher-priority work arrive on this hart.
func (r *Runtime) SetSwitchPending(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switchPending = v
}

// SwitchPending reports and clears the pending-switch flag. Called once
// by Start after an Inspector's Run returns, per spec.md §4.10.
func (r *Runtime) SwitchPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.switchPending
	r.switchPending = false
	return v
}

// peekSwitchPending reads the pending-switch flag without clearing it —
// the non-consuming read an Inspector's own Run loop polls every
// iteration, so a switch request observed mid-turn is still there for
// Start to clear once the turn actually ends.
func (r *Runtime) peekSwitchPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.switchPending
}

// CurrentTaskPriority passes through to the running inspector, if any.
// This is the hart-local half of the cross-hart read dispatch policies
// use to gauge a hart's current load.
func (r *Runtime) CurrentTaskPriority() (uint8, bool) {
	r.mu.Lock()
	cur := r.current
	running := r.status == RuntimeRunning
	insp := r.inspectors[cur]
	r.mu.Unlock()
	if !running || insp == nil {
		return 0, false
	}
	return insp.CurrentTaskPriority()
}

// Start runs the hart's scheduling loop: pop the next inspector off the
// FIFO and let it run its own turn to completion — an Inspector
// monopolizes the hart, stepping its own executors, until it either
// observes a pending switch or drains to Finished (spec.md §4.9) — then
// put it back at the tail unless it finished. The loop — and the hart —
// terminates once no inspectors remain, which for a hart with no nested
// inspectors happens exactly when the Bootstrap inspector's executors
// have all completed (P6).
//
// waitForInterrupt is invoked whenever a round found nothing ready to
// run, the hosted substitute for the original's WFI instruction.
func (r *Runtime) Start(waitForInterrupt func()) {
	for {
		r.mu.Lock()
		if len(r.fifo) == 0 {
			r.status = RuntimeEndpoint
			r.mu.Unlock()
			return
		}
		id := r.fifo[0]
		r.fifo = r.fifo[1:]
		insp := r.inspectors[id]
		r.current = id
		r.status = RuntimeRunning
		r.mu.Unlock()

		insp.Run(r.peekSwitchPending, waitForInterrupt)

		r.mu.Lock()
		if insp.IsFinished() {
			delete(r.inspectors, id)
		} else {
			r.fifo = append(r.fifo, id)
		}
		r.mu.Unlock()

		r.SwitchPending() // clear: the turn that just ended has been handled
	}
}

// Registry holds one Runtime per hart, the C12 substitute for a
// thread-pointer register: scheduling state is looked up by explicit
// hart id rather than through goroutine-local storage.
type Registry struct {
	tbl *percpu.Table[*Runtime]
}

// NewRegistry builds a Registry with a fresh Runtime for every hart in
// [0, nHarts).
func NewRegistry(nHarts int) *Registry {
	tbl := percpu.New[*Runtime](nHarts)
	for hart := 0; hart < nHarts; hart++ {
		*tbl.Get(hart) = NewRuntime(hart)
	}
	return &Registry{tbl: tbl}
}

// Runtime returns the Runtime bound to hart.
func (reg *Registry) Runtime(hart int) *Runtime {
	return *reg.tbl.Get(hart)
}

// TaskPriority reads the current task priority for hart, the
// with_spec_cpu-equivalent cross-hart access dispatch policies use to
// gauge a hart's load without migrating to run on it.
func (reg *Registry) TaskPriority(hart int) (uint8, bool) {
	if hart < 0 || hart >= reg.tbl.NHarts() {
		return 0, false
	}
	return reg.Runtime(hart).CurrentTaskPriority()
}
