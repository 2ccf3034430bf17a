// Package virtiomock implements just enough of the VirtIO-MMIO transport
// register layout to let a driver claim an IRQ through the PLIC path,
// without virtqueue ring mechanics (out of scope per SPEC_FULL.md's
// Non-goals).
package virtiomock

import "github.com/jrinx/kernelsim/internal/mmio"

// Register offsets, matching the VirtIO-MMIO v2 layout's leading fields —
// grounded on original_source/kern/modules/driver/src/net/virtio.rs's use
// of virtio_drivers::transport::mmio::VirtIOHeader, reduced to the fields
// this model's probers actually read or write.
const (
	offMagicValue      = 0x000
	offVersion         = 0x004
	offDeviceID        = 0x008
	offQueueSel        = 0x030
	offQueueNotify     = 0x050
	offInterruptStatus = 0x060
	offInterruptACK    = 0x064
	offStatus          = 0x070
)

// MagicValue is the little-endian "virt" magic every VirtIO-MMIO device
// presents at offset 0.
const MagicValue = 0x74726976

// Device status bits (a subset of the virtio spec's device status byte).
const (
	StatusAcknowledge = 1 << 0
	StatusDriver      = 1 << 1
	StatusDriverOK    = 1 << 2
	StatusFailed      = 1 << 7
)

// Transport is a VirtIO-MMIO device's register file. It holds every
// register as a plain writable Reg: whether a given field is guest- or
// device-written is an API-level convention here, not a hardware one, so
// nothing is gained by wrapping the guest-side read-only fields in
// mmio.ReadOnly.
type Transport struct {
	magic           mmio.Reg[uint32]
	version         mmio.Reg[uint32]
	deviceID        mmio.Reg[uint32]
	queueSel        mmio.Reg[uint32]
	queueNotify     mmio.Reg[uint32]
	interruptStatus mmio.Reg[uint32]
	interruptACK    mmio.Reg[uint32]
	status          mmio.Reg[uint32]
}

func newTransport(base uintptr) *Transport {
	reg := mmio.NewUnsafe[uint32](base)
	return &Transport{
		magic:           reg.Add(offMagicValue / 4),
		version:         reg.Add(offVersion / 4),
		deviceID:        reg.Add(offDeviceID / 4),
		queueSel:        reg.Add(offQueueSel / 4),
		queueNotify:     reg.Add(offQueueNotify / 4),
		interruptStatus: reg.Add(offInterruptStatus / 4),
		interruptACK:    reg.Add(offInterruptACK / 4),
		status:          reg.Add(offStatus / 4),
	}
}

// NewDevice builds a Transport at base acting as the device side: it
// stamps the magic value, version, and device id, the state a guest
// driver expects to already find on probe.
func NewDevice(base uintptr, deviceID uint32) *Transport {
	t := newTransport(base)
	t.magic.Write(MagicValue)
	t.version.Write(2)
	t.deviceID.Write(deviceID)
	return t
}

// NewGuest builds a Transport at base acting as the guest driver side:
// the same register file, read via the same offsets, with no power-on
// stamping (the device side already did that).
func NewGuest(base uintptr) *Transport {
	return newTransport(base)
}

// Magic returns the device's magic value; a guest driver checks this
// equals MagicValue before trusting the rest of the register file.
func (t *Transport) Magic() uint32 { return t.magic.Read() }

// DeviceID returns the VirtIO device type id (e.g. 1 = network).
func (t *Transport) DeviceID() uint32 { return t.deviceID.Read() }

// SetStatus ORs bits into the device status register, the guest-side
// acknowledge/driver/driver-ok handshake.
func (t *Transport) SetStatus(bits uint32) {
	t.status.Write(t.status.Read() | bits)
}

// Status returns the current device status register.
func (t *Transport) Status() uint32 { return t.status.Read() }

// SelectQueue writes the queue index the next queue-scoped operation
// applies to.
func (t *Transport) SelectQueue(idx uint32) { t.queueSel.Write(idx) }

// NotifyQueue signals the device that new descriptors are available on
// the given queue.
func (t *Transport) NotifyQueue(idx uint32) { t.queueNotify.Write(idx) }

// RaiseInterrupt is the device side setting interrupt-status bits,
// standing in for a real device's DMA/used-buffer completion signal.
func (t *Transport) RaiseInterrupt(bits uint32) {
	t.interruptStatus.Write(t.interruptStatus.Read() | bits)
}

// InterruptStatus returns the pending interrupt-status bits.
func (t *Transport) InterruptStatus() uint32 { return t.interruptStatus.Read() }

// AckInterrupt clears bits from the interrupt-status register by writing
// them to InterruptACK, the real VirtIO-MMIO handshake.
func (t *Transport) AckInterrupt(bits uint32) {
	t.interruptACK.Write(bits)
	t.interruptStatus.Write(t.interruptStatus.Read() &^ bits)
}
