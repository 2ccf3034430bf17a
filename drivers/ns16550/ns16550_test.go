package ns16550

import (
	"testing"
	"unsafe"

	"github.com/jrinx/kernelsim/internal/hostshim"
)

// writeRawByte pokes a byte directly into the simulated register file,
// standing in for a real UART flipping a status bit out of the driver's
// control (line-status bits are hardware-set, never written by software).
func writeRawByte(addr uintptr, v byte) {
	*(*byte)(unsafe.Pointer(addr)) = v
}

func newTestDriver(t *testing.T) (*Driver, *hostshim.RegisterFile) {
	t.Helper()
	rf, err := hostshim.NewRegisterFile(64)
	if err != nil {
		t.Fatalf("NewRegisterFile: %v", err)
	}
	t.Cleanup(func() { rf.Close() })
	d := New(rf.Base())
	return d, rf
}

func TestNewInitSequenceEnablesFifoAndReceiveInterrupt(t *testing.T) {
	d, _ := newTestDriver(t)
	if got := d.ier.Read(); got != 0x01 {
		t.Fatalf("interrupt_enable = 0x%x, want 0x01", got)
	}
	if got := d.fcr.Read(); got != 0xC7 {
		t.Fatalf("fifo_control = 0x%x, want 0xC7", got)
	}
	if got := d.mcr.Read(); got != 0x0B {
		t.Fatalf("modem_control = 0x%x, want 0x0B", got)
	}
}

func TestWriteByteWritesOnceOutputIsEmpty(t *testing.T) {
	d, rf := newTestDriver(t)
	lsrAddr := rf.Base() + offLineStatus
	writeRawByte(lsrAddr, lineStatusOutputEmpty)

	d.WriteByte('x')

	if got := d.data.Read(); got != 'x' {
		t.Fatalf("data register = %q, want 'x'", got)
	}
}

func TestHandleIrqDrainsInputIntoBuffer(t *testing.T) {
	d, rf := newTestDriver(t)
	lsrAddr := rf.Base() + offLineStatus

	writeRawByte(lsrAddr, lineStatusInputFull)
	d.data.Write('h')
	d.HandleIrq(10)

	// Clear input-full so a second HandleIrq call sees nothing further.
	writeRawByte(lsrAddr, 0)
	d.HandleIrq(10)

	b, ok := d.ReadBuffered()
	if !ok || b != 'h' {
		t.Fatalf("ReadBuffered = (%q, %v), want ('h', true)", b, ok)
	}
	if _, ok := d.ReadBuffered(); ok {
		t.Fatal("expected buffer to be drained after one byte")
	}
}
