package virtiomock

import (
	"testing"

	"github.com/jrinx/kernelsim/internal/hostshim"
)

func newTestPair(t *testing.T) (*Transport, *Transport) {
	t.Helper()
	rf, err := hostshim.NewRegisterFile(0x100)
	if err != nil {
		t.Fatalf("NewRegisterFile: %v", err)
	}
	t.Cleanup(func() { rf.Close() })
	dev := NewDevice(rf.Base(), 1)
	guest := NewGuest(rf.Base())
	return dev, guest
}

func TestGuestSeesDeviceStampedFields(t *testing.T) {
	_, guest := newTestPair(t)
	if got := guest.Magic(); got != MagicValue {
		t.Fatalf("Magic() = %#x, want %#x", got, uint32(MagicValue))
	}
	if got := guest.DeviceID(); got != 1 {
		t.Fatalf("DeviceID() = %d, want 1", got)
	}
}

func TestStatusHandshakeAccumulatesBits(t *testing.T) {
	_, guest := newTestPair(t)
	guest.SetStatus(StatusAcknowledge)
	guest.SetStatus(StatusDriver)
	want := uint32(StatusAcknowledge | StatusDriver)
	if got := guest.Status(); got != want {
		t.Fatalf("Status() = %#x, want %#x", got, want)
	}
}

func TestRaiseAndAckInterrupt(t *testing.T) {
	dev, guest := newTestPair(t)
	dev.RaiseInterrupt(1)

	if got := guest.InterruptStatus(); got != 1 {
		t.Fatalf("InterruptStatus() = %#x, want 1", got)
	}

	guest.AckInterrupt(1)
	if got := guest.InterruptStatus(); got != 0 {
		t.Fatalf("InterruptStatus() after ack = %#x, want 0", got)
	}
}
