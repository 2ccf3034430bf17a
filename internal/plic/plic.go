// Package plic implements the platform-level interrupt controller: the
// chip-wide claim/complete fabric that fans external interrupts out to
// per-hart contexts and, from there, into the IRQ manager.
package plic

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jrinx/kernelsim/internal/irq"
	"github.com/jrinx/kernelsim/internal/kernerr"
	"github.com/jrinx/kernelsim/internal/mmio"
)

// Register layout, matching the sifive,plic-1.0.0 binding riscv_plic.rs
// programs against. The three region bases are byte offsets from the
// PLIC's base address; the per-context register indices and strides are
// in 32-bit words (byte value / 4), as mmio.Reg[uint32].Add expects.
const (
	priorityBase = 0x0
	enableBase   = 0x2000
	contextBase  = 0x20_0000

	contextThreshold = 0x0 / 4
	contextClaim     = 0x4 / 4

	enableContextStride = 0x80 / 4
	contextHartStride   = 0x1000 / 4
)

// MinIrq and MaxIrq bound the valid IRQ range the PLIC will claim/enable,
// mirroring riscv_plic.rs's IRQ_RANGE (1..1024).
const (
	MinIrq = 1
	MaxIrq = 1023
)

// RootCompatible selects how a hart id maps to a PLIC context id. The real
// binding varies this by board; the model captures the one value the
// device prober reads once at boot from the FDT root's "compatible"
// property.
type RootCompatible string

const (
	RootVirtio  RootCompatible = "riscv-virtio"
	RootSifive  RootCompatible = "sifive"
)

func contextID(root RootCompatible, hart int) (int, error) {
	switch root {
	case RootVirtio:
		return hart*2 + 1, nil
	case RootSifive:
		if hart == 0 {
			return 0, kernerr.New(kernerr.InvalidCpuId, "hart id 0 is invalid under sifive context mapping")
		}
		return hart * 2, nil
	default:
		return 0, kernerr.New(kernerr.InvalidParam, "unknown root compatible %q", root)
	}
}

func validIrq(n int) bool { return n >= MinIrq && n <= MaxIrq }

// Controller is the PLIC driver (C4): one instance per PLIC node found
// during device probing.
type Controller struct {
	mu sync.Mutex

	priority Reg32
	enable   Reg32
	context  Reg32

	root         RootCompatible
	contextMaxID int

	irqCounts map[int]uint64

	manager *irq.Manager
	logger  *slog.Logger
}

// Reg32 is an alias of mmio.Reg[uint32], the register type every PLIC
// region is accessed through; New takes a raw base address, which the
// tests back with a hostshim register file.
type Reg32 = mmio.Reg[uint32]

// New constructs a PLIC at baseAddr, sized for contextMaxID+1 contexts
// (one per hart, by root's mapping), disabling every IRQ on every context
// and zeroing every threshold, exactly as PLICInner::init does before
// first use.
func New(baseAddr uintptr, contextMaxID int, root RootCompatible, manager *irq.Manager, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		priority:     mmio.NewUnsafe[uint32](baseAddr + priorityBase),
		enable:       mmio.NewUnsafe[uint32](baseAddr + enableBase),
		context:      mmio.NewUnsafe[uint32](baseAddr + contextBase),
		root:         root,
		contextMaxID: contextMaxID,
		irqCounts:    make(map[int]uint64),
		manager:      manager,
		logger:       logger,
	}
	for ctx := 0; ctx <= contextMaxID; ctx++ {
		c.disableAll(ctx)
		c.setThreshold(ctx, 0)
	}
	return c
}

// Name implements irq.Driver.
func (c *Controller) Name() string { return "riscv_plic" }

func (c *Controller) disableAll(ctx int) {
	for i := 0; i < 32; i++ {
		c.enable.Add(uintptr(ctx*enableContextStride + i)).Write(0)
	}
}

func (c *Controller) setThreshold(ctx int, threshold uint8) {
	c.context.Add(uintptr(ctx*contextHartStride + contextThreshold)).Write(uint32(threshold))
}

func (c *Controller) setPriority(irqNum int, priority uint8) {
	c.priority.Add(uintptr(irqNum)).Write(uint32(priority))
}

func (c *Controller) enableBit(ctx, irqNum int) {
	reg := c.enable.Add(uintptr(ctx*enableContextStride + irqNum/32))
	reg.Write(reg.Read() | 1<<(uint(irqNum)%32))
}

func (c *Controller) disableBit(ctx, irqNum int) {
	reg := c.enable.Add(uintptr(ctx*enableContextStride + irqNum/32))
	reg.Write(reg.Read() &^ (1 << (uint(irqNum) % 32)))
}

// Enable routes irqNum to hart's context, priority 0 threshold (P2: the
// existing enable bitmap for hart is read-modify-written, never replaced
// wholesale).
func (c *Controller) Enable(hart, irqNum int) error {
	if !validIrq(irqNum) {
		return kernerr.New(kernerr.InvalidParam, "irq %d out of plic range", irqNum)
	}
	ctx, err := contextID(c.root, hart)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enableBit(ctx, irqNum)
	c.setThreshold(ctx, 0)
	return nil
}

// Disable clears irqNum from hart's context, preserving every other bit
// (P2).
func (c *Controller) Disable(hart, irqNum int) error {
	if !validIrq(irqNum) {
		return kernerr.New(kernerr.InvalidParam, "irq %d out of plic range", irqNum)
	}
	ctx, err := contextID(c.root, hart)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableBit(ctx, irqNum)
	return nil
}

// RegisterDevice binds dev to irqNum in the shared IRQ manager and sets
// the IRQ's priority to 7, the fixed non-zero priority riscv_plic.rs
// assigns every registered device.
func (c *Controller) RegisterDevice(irqNum int, dev irq.Driver) error {
	if !validIrq(irqNum) {
		return kernerr.New(kernerr.InvalidParam, "irq %d out of plic range", irqNum)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manager.Register(irqNum, dev)
	c.setPriority(irqNum, 7)
	return nil
}

// Info returns a short diagnostic summary.
func (c *Controller) Info() string { return "riscv_plic" }

// HandleIrq claims the pending interrupt on hart's context, dispatches it
// through the IRQ manager, and signals end-of-interrupt, bracketing the
// dispatch even if the handler panics so the controller never wedges with
// an unacknowledged claim.
func (c *Controller) HandleIrq(hart int) (d time.Duration) {
	ctx, err := contextID(c.root, hart)
	if err != nil {
		c.logger.Warn("plic handle: bad context", slog.Int("hart", hart), slog.Any("err", err))
		return 0
	}

	c.mu.Lock()
	claimReg := c.context.Add(uintptr(ctx*contextHartStride + contextClaim))
	irqNum := int(claimReg.Read())
	c.mu.Unlock()

	if irqNum == 0 {
		c.logger.Warn("plic claim zero", slog.Int("hart", hart))
		return 0
	}

	c.mu.Lock()
	c.irqCounts[irqNum]++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		claimReg.Write(uint32(irqNum))
		c.mu.Unlock()
		if r := recover(); r != nil {
			c.logger.Error("plic handler panicked", slog.Int("irq", irqNum), slog.Any("recover", r))
			d = 0
		}
	}()

	d = c.manager.Handle(irqNum)
	return d
}

// IrqCount reports how many times irqNum has been claimed since boot.
func (c *Controller) IrqCount(irqNum int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.irqCounts[irqNum]
}

var _ irq.Controller = (*Controller)(nil)
