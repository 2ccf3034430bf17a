// Package dispatch implements the cross-hart IRQ load-balancing policy: a
// self-rescheduling task that moves external IRQs between harts on every
// timer tick according to one of three pluggable strategies.
package dispatch

import (
	"sort"
	"time"

	"github.com/jrinx/kernelsim/internal/irq"
	"github.com/jrinx/kernelsim/internal/timerq"
)

// Interval is the fixed re-scheduling period every policy reschedules
// itself at.
const Interval = time.Second

// The two IRQs every policy rebalances. NS16550 (UART) is bound to 10
// elsewhere in this model; 8 stands in for the second interest IRQ
// (network) min_count and min_load both reason about.
const (
	IrqNet  = 8
	IrqUART = 10
)

// min_load's fixed per-IRQ weighting, taken directly from the source this
// is grounded on.
const (
	weightUART = 1
	weightNet  = 4
)

// maxLoad stands in for "hart unavailable" — a non-Running hart sorts
// after every Running hart regardless of its stale priority value.
const maxLoad = ^uint32(0)

// Context is everything a Policy's Tick needs: the shared PLIC capability
// it enables/disables IRQs through, and read accessors over hart/IRQ load
// state the scheduler and INTC/PLIC already track.
type Context struct {
	NHarts int

	// Controller is the chip-wide interrupt controller (the PLIC) this
	// policy's Enable/Disable calls affect.
	Controller irq.Controller

	// TaskPriority returns hart's currently running task priority and
	// whether the hart is Running at all; a non-Running hart is treated
	// as maximally loaded (P: "idle-unavailable").
	TaskPriority func(hart int) (priority uint8, running bool)

	// HartInterruptCount returns the INTC's per-hart external-interrupt
	// counter, the input to min_count's load function.
	HartInterruptCount func(hart int) uint64

	// IrqCount returns the PLIC's per-IRQ claim counter, the input to
	// min_load's weighting.
	IrqCount func(irqNum int) uint64
}

// Policy is one cross-hart load-balancing strategy.
type Policy interface {
	Tick(ctx Context) error
}

func hartLoad(ctx Context, hart int) uint32 {
	priority, running := ctx.TaskPriority(hart)
	if !running {
		return maxLoad
	}
	return uint32(priority)<<16 | uint32(ctx.HartInterruptCount(hart)&0xffff)
}

// hartsByLoad returns hart ids 0..NHarts-1 sorted ascending by load,
// ties broken by lowest hart id (a stable sort over the natural
// id-ascending input order already achieves this).
func hartsByLoad(ctx Context) []int {
	harts := make([]int, ctx.NHarts)
	for i := range harts {
		harts[i] = i
	}
	sort.SliceStable(harts, func(i, j int) bool {
		return hartLoad(ctx, harts[i]) < hartLoad(ctx, harts[j])
	})
	return harts
}

// RotatePolicy enables irqNum on hart (i+1) mod N and disables it on hart
// i every tick, cycling ownership around the hart ring.
type RotatePolicy struct {
	irqNum  int
	current int
}

// NewRotatePolicy starts rotation with irqNum currently enabled on hart 0.
func NewRotatePolicy(irqNum int) *RotatePolicy {
	return &RotatePolicy{irqNum: irqNum, current: 0}
}

func (p *RotatePolicy) Tick(ctx Context) error {
	if ctx.NHarts == 0 {
		return nil
	}
	next := (p.current + 1) % ctx.NHarts
	if err := ctx.Controller.Disable(p.current, p.irqNum); err != nil {
		return err
	}
	if err := ctx.Controller.Enable(next, p.irqNum); err != nil {
		return err
	}
	p.current = next
	return nil
}

// MinCountPolicy places IrqUART and IrqNet on the two least-loaded harts
// every tick, disabling both IRQs everywhere first so no hart ever briefly
// holds both.
type MinCountPolicy struct{}

func NewMinCountPolicy() *MinCountPolicy { return &MinCountPolicy{} }

func (p *MinCountPolicy) Tick(ctx Context) error {
	if ctx.NHarts == 0 {
		return nil
	}
	for _, irqNum := range []int{IrqNet, IrqUART} {
		for hart := 0; hart < ctx.NHarts; hart++ {
			if err := ctx.Controller.Disable(hart, irqNum); err != nil {
				return err
			}
		}
	}

	harts := hartsByLoad(ctx)
	lightest := harts[0]
	second := lightest
	if ctx.NHarts > 1 {
		second = harts[1]
	}
	if err := ctx.Controller.Enable(lightest, IrqUART); err != nil {
		return err
	}
	return ctx.Controller.Enable(second, IrqNet)
}

// MinLoadPolicy weighs IrqUART and IrqNet by their observed claim counts
// (UART×1, NET×4) and places the heavier-weighted IRQ on the single
// lightest hart, the next on the next-lightest. Harts are ranked by
// current task priority alone (non-Running harts last, lowest id first
// among ties); the per-hart interrupt count is not consulted.
type MinLoadPolicy struct{}

func NewMinLoadPolicy() *MinLoadPolicy { return &MinLoadPolicy{} }

func (p *MinLoadPolicy) Tick(ctx Context) error {
	if ctx.NHarts == 0 {
		return nil
	}
	weighted := map[int]uint64{
		IrqUART: weightUART * ctx.IrqCount(IrqUART),
		IrqNet:  weightNet * ctx.IrqCount(IrqNet),
	}
	irqsByWeight := []int{IrqUART, IrqNet}
	sort.SliceStable(irqsByWeight, func(i, j int) bool {
		return weighted[irqsByWeight[i]] > weighted[irqsByWeight[j]]
	})

	priority := func(hart int) uint32 {
		p, running := ctx.TaskPriority(hart)
		if !running {
			return maxLoad
		}
		return uint32(p)
	}
	harts := make([]int, ctx.NHarts)
	for i := range harts {
		harts[i] = i
	}
	sort.SliceStable(harts, func(i, j int) bool {
		return priority(harts[i]) < priority(harts[j])
	})
	for i, irqNum := range irqsByWeight {
		hart := harts[0]
		if i < len(harts) {
			hart = harts[i]
		}
		for h := 0; h < ctx.NHarts; h++ {
			if err := ctx.Controller.Disable(h, irqNum); err != nil {
				return err
			}
		}
		if err := ctx.Controller.Enable(hart, irqNum); err != nil {
			return err
		}
	}
	return nil
}

// Dispatcher drives a Policy as a self-rescheduling timed event: every
// Interval it runs one Tick and immediately reschedules the next one,
// the Go analogue of the original's timer-driven dispatch task.
type Dispatcher struct {
	ctx    Context
	policy Policy
	queue  *timerq.Queue
	now    func() int64
	onErr  func(error)
}

// NewDispatcher builds a Dispatcher. now supplies the monotonic clock
// (hostshim.MonotonicNow in production); onErr, if non-nil, receives any
// error a Tick returns instead of the error being silently dropped.
func NewDispatcher(ctx Context, policy Policy, queue *timerq.Queue, now func() int64, onErr func(error)) *Dispatcher {
	return &Dispatcher{ctx: ctx, policy: policy, queue: queue, now: now, onErr: onErr}
}

// Start schedules the first tick, Interval from now.
func (d *Dispatcher) Start() timerq.Tracker {
	return d.schedule()
}

func (d *Dispatcher) schedule() timerq.Tracker {
	deadline := d.now() + int64(Interval)
	return d.queue.Create(deadline, timerq.Handler{
		OnTimeout: d.fire,
		OnCancel:  func() {},
	})
}

func (d *Dispatcher) fire() {
	if err := d.policy.Tick(d.ctx); err != nil && d.onErr != nil {
		d.onErr(err)
	}
	d.schedule()
}
