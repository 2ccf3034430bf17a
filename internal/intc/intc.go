// Package intc implements the hart-local interrupt controller: the
// supervisor interrupt-enable bitmask and its delegation of external
// interrupts to the registered PLIC.
package intc

import (
	"sync/atomic"
	"time"

	"github.com/jrinx/kernelsim/internal/irq"
	"github.com/jrinx/kernelsim/internal/kernerr"
)

// Code identifies one of the three supervisor interrupt lines this
// controller's Enable/Disable operate on.
type Code int

const (
	SupervisorSoft Code = iota
	SupervisorTimer
	SupervisorExternal
)

func (c Code) bit() uint32 {
	switch c {
	case SupervisorSoft:
		return 1 << 1
	case SupervisorTimer:
		return 1 << 5
	case SupervisorExternal:
		return 1 << 9
	default:
		return 0
	}
}

// Controller is the hart-local INTC (C3). Enable/Disable touch the
// supervisor-interrupt-enable register's soft/timer/external bits only.
type Controller struct {
	// sie mirrors the RISC-V `sie` CSR per hart; index is hart id.
	sie []atomic.Uint32

	plic     irq.Controller
	irqCount []atomic.Uint64
}

// New creates an INTC sized for nHarts harts.
func New(nHarts int) *Controller {
	return &Controller{
		sie:      make([]atomic.Uint32, nHarts),
		irqCount: make([]atomic.Uint64, nHarts),
	}
}

// Name implements irq.Driver.
func (c *Controller) Name() string { return "riscv_intc" }

// BindPlic registers the chip-level PLIC this INTC delegates external
// interrupts to. Exactly one PLIC is expected per boot, mirroring
// riscv_intc.rs's use of the global IRQ_TABLE/PLIC_PHANDLE pair.
func (c *Controller) BindPlic(p irq.Controller) {
	c.plic = p
}

// Enable sets exactly one supervisor-interrupt-enable bit for hart.
func (c *Controller) Enable(hart, code int) error {
	return c.setBit(hart, code, true)
}

// Disable clears exactly one supervisor-interrupt-enable bit for hart.
func (c *Controller) Disable(hart, code int) error {
	return c.setBit(hart, code, false)
}

func (c *Controller) setBit(hart, code int, set bool) error {
	if hart < 0 || hart >= len(c.sie) {
		return kernerr.New(kernerr.InvalidCpuId, "hart %d out of range", hart)
	}
	bit := Code(code).bit()
	if bit == 0 {
		return kernerr.New(kernerr.DevWriteError, "unsupported interrupt code %d", code)
	}
	for {
		old := c.sie[hart].Load()
		var next uint32
		if set {
			next = old | bit
		} else {
			next = old &^ bit
		}
		if c.sie[hart].CompareAndSwap(old, next) {
			return nil
		}
	}
}

// Enabled reports whether the named line is currently enabled for hart.
func (c *Controller) Enabled(hart int, code Code) bool {
	if hart < 0 || hart >= len(c.sie) {
		return false
	}
	return c.sie[hart].Load()&code.bit() != 0
}

// RegisterDevice is not meaningful on the hart-local INTC: devices register
// with the PLIC, which owns the IRQ manager. Mirrors riscv_intc.rs's
// `todo!()` stub, made explicit instead of left unreachable.
func (c *Controller) RegisterDevice(irqNum int, dev irq.Driver) error {
	return kernerr.New(kernerr.InvalidParam, "register_device is not supported on the hart-local INTC")
}

// Info returns a short diagnostic summary.
func (c *Controller) Info() string {
	return "riscv_intc"
}

// HandleIrq delegates external-cause interrupts to the bound PLIC,
// increments hart's interrupt counter, and returns the driver-reported
// start timestamp.
func (c *Controller) HandleIrq(hart int) time.Duration {
	if hart >= 0 && hart < len(c.irqCount) {
		c.irqCount[hart].Add(1)
	}
	if c.plic == nil {
		return 0
	}
	return c.plic.HandleIrq(hart)
}

// InterruptCount returns the number of external interrupts handled on hart,
// the input the dispatch policy's load calculation reads.
func (c *Controller) InterruptCount(hart int) uint64 {
	if hart < 0 || hart >= len(c.irqCount) {
		return 0
	}
	return c.irqCount[hart].Load()
}

var _ irq.Controller = (*Controller)(nil)
