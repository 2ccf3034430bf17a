// Package ns16550 implements the NS16550 UART driver bound to external
// IRQ 10 (spec.md §8 scenario 2): register layout, FIFO drain on
// HandleIrq, and a byte-oriented write path for console output.
package ns16550

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jrinx/kernelsim/internal/devprobe"
	"github.com/jrinx/kernelsim/internal/fdt"
	"github.com/jrinx/kernelsim/internal/irq"
	"github.com/jrinx/kernelsim/internal/kernerr"
	"github.com/jrinx/kernelsim/internal/mmio"
)

// Register offsets, matching original_source's NS16550Inner layout: one
// byte-wide register per field, in declaration order.
const (
	offData            = 0
	offInterruptEnable = 1
	offLineControl     = 2
	offFifoControl     = 3
	offModemControl    = 4
	offLineStatus      = 5
	offModemStatus     = 6
)

const (
	lineStatusInputFull   = 1 << 0
	lineStatusOutputEmpty = 1 << 5
)

// Driver is the NS16550 UART, IRQ-bound per the devprobe registration this
// package wires in.
type Driver struct {
	mu sync.Mutex

	data mmio.Reg[uint8]
	ier  mmio.Reg[uint8]
	lcr  mmio.Reg[uint8]
	fcr  mmio.Reg[uint8]
	mcr  mmio.Reg[uint8]
	lsr  mmio.ReadOnly[uint8]
	msr  mmio.ReadOnly[uint8]

	rx []byte
}

// New builds a Driver at base and runs the power-on register sequence the
// original's NS16550Inner::init performs: disable interrupts, enable and
// reset the FIFO, assert DTR/RTS/OUT2, then re-enable receive interrupts.
func New(base uintptr) *Driver {
	reg := mmio.NewUnsafe[uint8](base)
	d := &Driver{
		data: reg.Add(offData),
		ier:  reg.Add(offInterruptEnable),
		lcr:  reg.Add(offLineControl),
		fcr:  reg.Add(offFifoControl),
		mcr:  reg.Add(offModemControl),
		lsr:  mmio.NewReadOnly(reg.Add(offLineStatus)),
		msr:  mmio.NewReadOnly(reg.Add(offModemStatus)),
	}
	d.ier.Write(0x00)
	d.fcr.Write(0xC7)
	d.mcr.Write(0x0B)
	d.ier.Write(0x01)
	return d
}

func (d *Driver) outputEmpty() bool {
	return d.lsr.Read()&lineStatusOutputEmpty != 0
}

func (d *Driver) inputFull() bool {
	return d.lsr.Read()&lineStatusInputFull != 0
}

// WriteByte blocks until the transmit holding register is free, then
// writes b. Matches the original's busy-wait write loop — this model has
// no interrupt-driven transmit path.
func (d *Driver) WriteByte(b byte) {
	for !d.outputEmpty() {
	}
	d.data.Write(b)
}

// WriteString writes s, translating '\n' to "\r\n" the way the original's
// write_str does.
func (d *Driver) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			d.WriteByte('\r')
			d.WriteByte('\n')
			continue
		}
		d.WriteByte(s[i])
	}
}

// readByte drains a single byte directly from the register if the input
// buffer is non-empty, or the zero value and false otherwise.
func (d *Driver) readByte() (byte, bool) {
	if !d.inputFull() {
		return 0, false
	}
	return d.data.Read(), true
}

// ReadBuffered pops the oldest byte off the internal drain buffer filled
// by HandleIrq, the bytes a console reader actually consumes.
func (d *Driver) ReadBuffered() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0, false
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	return b, true
}

// Name implements irq.Driver.
func (d *Driver) Name() string { return "ns16550" }

// HandleIrq drains every byte currently available in the receive register
// into the internal buffer, matching the original's handle_irq loop
// (`while let Some(ch) = self.inner.lock().read()`).
func (d *Driver) HandleIrq(irqNum int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		b, ok := d.readByte()
		if !ok {
			break
		}
		d.rx = append(d.rx, b)
	}
	return 0
}

var _ irq.Driver = (*Driver)(nil)

// NewProbeFunc builds a devprobe.ProbeFunc that constructs a Driver at the
// node's first reg region and registers it with ctrl on irqNum — the
// probe-time wiring original_source leaves commented out (GLOBAL_NS16550
// is never actually registered there) made explicit here.
func NewProbeFunc(ctrl irq.Controller, irqNum int, logger *slog.Logger) devprobe.ProbeFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(node fdt.Node) error {
		regions := node.Reg()
		if len(regions) == 0 {
			return kernerr.New(kernerr.DevProbeError, "ns16550: node %q has no reg property", node.Name)
		}
		base := uintptr(regions[0].Address)
		dev := New(base)
		if err := ctrl.RegisterDevice(irqNum, dev); err != nil {
			return err
		}
		logger.Info("ns16550 probed", "base", base, "irq", irqNum)
		return nil
	}
}
