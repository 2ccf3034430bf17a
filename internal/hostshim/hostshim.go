// Package hostshim provides the host-side backing a simulated hart needs but
// a real embedded target gets from hardware: anonymous pages standing in for
// device register files, and a monotonic clock standing in for the RISC-V
// `time` CSR. Both are grounded on golang.org/x/sys/unix the way
// internal/asm/arm64's JIT allocator in the pack uses it for executable
// pages.
package hostshim

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RegisterFile is an anonymous mapping used as a stand-in MMIO region: a
// contiguous block of memory a driver's mmio.Reg values can be built on top
// of, without a real device behind it.
type RegisterFile struct {
	mem []byte
}

// NewRegisterFile allocates a zeroed, page-rounded anonymous mapping of at
// least size bytes.
func NewRegisterFile(size int) (*RegisterFile, error) {
	if size <= 0 {
		return nil, fmt.Errorf("hostshim: register file size must be positive, got %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("hostshim: mmap register file: %w", err)
	}
	return &RegisterFile{mem: mem}, nil
}

// Base returns the address of the first byte of the region, suitable for
// mmio.NewUnsafe.
func (r *RegisterFile) Base() uintptr {
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

// Len reports the mapping's size in bytes.
func (r *RegisterFile) Len() int { return len(r.mem) }

// Close releases the mapping.
func (r *RegisterFile) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

// MonotonicNow returns CLOCK_MONOTONIC as a time.Duration-compatible
// nanosecond count, the model's substitute for the hart's `time` CSR that
// timerq.Queue deadlines are measured against.
func MonotonicNow() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is required by POSIX.1-2008 and always available
		// on the platforms this module targets; a failure here means the
		// host itself is broken.
		panic(fmt.Sprintf("hostshim: clock_gettime(CLOCK_MONOTONIC): %v", err))
	}
	return int64(ts.Sec)*1_000_000_000 + int64(ts.Nsec)
}
