package dispatch

import (
	"testing"
	"time"

	"github.com/jrinx/kernelsim/internal/irq"
	"github.com/jrinx/kernelsim/internal/timerq"
)

// fakeController is an irq.Controller test double that just records which
// (hart, irqNum) pairs are currently enabled.
type fakeController struct {
	enabled map[[2]int]bool
}

func newFakeController() *fakeController {
	return &fakeController{enabled: make(map[[2]int]bool)}
}

func (c *fakeController) Name() string                    { return "fake" }
func (c *fakeController) HandleIrq(int) time.Duration     { return 0 }
func (c *fakeController) Enable(hart, irqNum int) error   { c.enabled[[2]int{hart, irqNum}] = true; return nil }
func (c *fakeController) Disable(hart, irqNum int) error  { delete(c.enabled, [2]int{hart, irqNum}); return nil }
func (c *fakeController) RegisterDevice(int, irq.Driver) error { return nil }
func (c *fakeController) Info() string                    { return "" }

func (c *fakeController) isEnabled(hart, irqNum int) bool {
	return c.enabled[[2]int{hart, irqNum}]
}

func constPriority(p uint8) func(int) (uint8, bool) {
	return func(int) (uint8, bool) { return p, true }
}

func TestRotatePolicyMovesIrqToNextHart(t *testing.T) {
	ctrl := newFakeController()
	ctx := Context{NHarts: 4, Controller: ctrl}
	p := NewRotatePolicy(99)

	if err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !ctrl.isEnabled(1, 99) {
		t.Fatal("irq should now be enabled on hart 1")
	}
	if ctrl.isEnabled(0, 99) {
		t.Fatal("irq should be disabled on hart 0")
	}

	if err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !ctrl.isEnabled(2, 99) || ctrl.isEnabled(1, 99) {
		t.Fatal("irq should have rotated from hart 1 to hart 2")
	}
}

func TestMinCountPolicyPicksLowestIdAmongTiedMinima(t *testing.T) {
	ctrl := newFakeController()
	counts := []uint64{0, 0, 100, 0, 0}
	ctx := Context{
		NHarts:     5,
		Controller: ctrl,
		TaskPriority: constPriority(1),
		HartInterruptCount: func(hart int) uint64 { return counts[hart] },
	}
	// Simulate IRQ 10 already enabled on hart 2 before this tick.
	ctrl.enabled[[2]int{2, IrqUART}] = true

	p := NewMinCountPolicy()
	if err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if !ctrl.isEnabled(0, IrqUART) {
		t.Fatal("irq 10 should be enabled on hart 0, the lowest-id tied minimum")
	}
	if ctrl.isEnabled(2, IrqUART) {
		t.Fatal("irq 10 should no longer be enabled on the previously-enabled hart 2")
	}
}

func TestMinLoadPolicyWeightsIrqsByCount(t *testing.T) {
	ctrl := newFakeController()
	counts := map[int]uint64{IrqUART: 10, IrqNet: 10}
	ctx := Context{
		NHarts:       2,
		Controller:   ctrl,
		TaskPriority: constPriority(0),
		IrqCount:     func(irqNum int) uint64 { return counts[irqNum] },
	}

	p := NewMinLoadPolicy()
	if err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// NET (weight 4) outweighs UART (weight 1) at equal counts, so NET
	// should land on the single lightest hart (hart 0, tied minimum).
	if !ctrl.isEnabled(0, IrqNet) {
		t.Fatal("heavier-weighted NET should be on hart 0")
	}
	if !ctrl.isEnabled(1, IrqUART) {
		t.Fatal("lighter-weighted UART should be on hart 1")
	}
}

func TestDispatcherSelfReschedules(t *testing.T) {
	ctrl := newFakeController()
	q := timerq.NewQueue()
	var now int64
	clock := func() int64 { return now }

	ctx := Context{NHarts: 2, Controller: ctrl}
	p := NewRotatePolicy(5)
	d := NewDispatcher(ctx, p, q, clock, func(err error) { t.Fatalf("unexpected policy error: %v", err) })
	d.Start()

	now += int64(Interval)
	if n := q.Tick(now); n != 1 {
		t.Fatalf("Tick = %d, want 1", n)
	}
	if !ctrl.isEnabled(1, 5) {
		t.Fatal("first tick should have rotated irq 5 to hart 1")
	}

	// The dispatcher must have rescheduled itself for another Interval out.
	if q.PeekOutdated(now) {
		t.Fatal("dispatcher's rescheduled event should not be outdated yet")
	}
	now += int64(Interval)
	if n := q.Tick(now); n != 1 {
		t.Fatalf("second Tick = %d, want 1", n)
	}
	if !ctrl.isEnabled(0, 5) {
		t.Fatal("second tick should have rotated irq 5 back to hart 0")
	}
}

var _ irq.Controller = (*fakeController)(nil)
