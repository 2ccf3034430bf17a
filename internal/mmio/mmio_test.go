package mmio

import (
	"testing"

	"github.com/jrinx/kernelsim/internal/hostshim"
)

func newTestRegisterFile(t *testing.T, size int) *hostshim.RegisterFile {
	t.Helper()
	rf, err := hostshim.NewRegisterFile(size)
	if err != nil {
		t.Fatalf("NewRegisterFile: %v", err)
	}
	t.Cleanup(func() { _ = rf.Close() })
	return rf
}

func TestReg32ReadWrite(t *testing.T) {
	rf := newTestRegisterFile(t, 4096)
	reg := NewUnsafe[uint32](rf.Base())

	if got := reg.Read(); got != 0 {
		t.Fatalf("initial Read() = %d, want 0", got)
	}
	reg.Write(0xdeadbeef)
	if got := reg.Read(); got != 0xdeadbeef {
		t.Fatalf("Read() after Write = 0x%x, want 0xdeadbeef", got)
	}
}

func TestRegAddIndexesByWordSize(t *testing.T) {
	rf := newTestRegisterFile(t, 4096)
	base := NewUnsafe[uint32](rf.Base())

	base.Add(0).Write(1)
	base.Add(1).Write(2)
	base.Add(2).Write(3)

	if got := base.Add(0).Read(); got != 1 {
		t.Fatalf("Add(0).Read() = %d, want 1", got)
	}
	if got := base.Add(1).Read(); got != 2 {
		t.Fatalf("Add(1).Read() = %d, want 2", got)
	}
	if got := base.Add(2).Read(); got != 3 {
		t.Fatalf("Add(2).Read() = %d, want 3", got)
	}
}

func TestReadOnlyWriteOnlyRestrictAPI(t *testing.T) {
	rf := newTestRegisterFile(t, 4096)
	reg := NewUnsafe[uint32](rf.Base())

	wo := NewWriteOnly(reg)
	wo.Write(7)

	ro := NewReadOnly(reg)
	if got := ro.Read(); got != 7 {
		t.Fatalf("ReadOnly.Read() = %d, want 7", got)
	}
}

func TestNewUnsafePanicsOnMisalignment(t *testing.T) {
	rf := newTestRegisterFile(t, 4096)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on misaligned register address")
		}
	}()
	NewUnsafe[uint32](rf.Base() + 1)
}
