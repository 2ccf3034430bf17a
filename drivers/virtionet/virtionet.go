// Package virtionet is a VirtIO-net stand-in driver that answers DNS
// queries over its (elided) virtqueue purely to exercise the
// driver → IRQ manager → PLIC claim/complete path end-to-end — a
// realistic "network device raises an IRQ" scenario, grounded on the
// teacher's internal/netstack/dns.go.
package virtionet

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/jrinx/kernelsim/drivers/virtiomock"
	"github.com/jrinx/kernelsim/internal/devprobe"
	"github.com/jrinx/kernelsim/internal/fdt"
	"github.com/jrinx/kernelsim/internal/irq"
	"github.com/jrinx/kernelsim/internal/kernerr"
)

// interruptUsedBuffer is the VirtIO-MMIO "used buffer notification" bit,
// the one this driver's HandleIrq acks once it has drained the queue.
const interruptUsedBuffer = 1 << 0

// NetworkDeviceID is the VirtIO device-type id for a network device.
const NetworkDeviceID = 1

// Lookup resolves a DNS question name to an A-record IP string, or
// returns an error/empty string if the name is unknown.
type Lookup func(name string) (string, error)

// Driver answers queued DNS queries, mirroring the original's
// handle_irq → poll_interfaces → ack_interrupt shape but inlining the
// resolution itself, since this model has no smoltcp socket layer to
// poll (out of scope per SPEC_FULL.md's Non-goals).
type Driver struct {
	mu sync.Mutex

	transport *virtiomock.Transport
	lookup    Lookup
	logger    *slog.Logger

	rx [][]byte // raw DNS-query wire bytes, guest-enqueued ahead of the IRQ
	tx [][]byte // raw DNS-reply wire bytes, ready for guest pickup
}

// New builds a Driver bound to transport, answering queries with lookup.
func New(transport *virtiomock.Transport, lookup Lookup, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{transport: transport, lookup: lookup, logger: logger}
}

// Name implements irq.Driver.
func (d *Driver) Name() string { return "virtio-net" }

// EnqueueQuery simulates the guest placing a raw DNS query packet onto
// the device's receive virtqueue — the ring mechanics this model elides —
// to be answered the next time HandleIrq runs.
func (d *Driver) EnqueueQuery(query []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = append(d.rx, query)
}

// PopReply removes and returns the oldest queued reply packet, if any.
func (d *Driver) PopReply() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tx) == 0 {
		return nil, false
	}
	reply := d.tx[0]
	d.tx = d.tx[1:]
	return reply, true
}

// HandleIrq answers every queued DNS query, then acks the used-buffer
// interrupt — the Go analogue of the original's
// `self.inner.lock().raw.ack_interrupt()` tail call.
func (d *Driver) HandleIrq(irqNum int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, q := range d.rx {
		reply, err := d.answer(q)
		if err != nil {
			d.logger.Warn("virtio-net: dns answer failed", "err", err)
			continue
		}
		d.tx = append(d.tx, reply)
	}
	d.rx = nil
	if d.transport != nil {
		d.transport.AckInterrupt(interruptUsedBuffer)
	}
	return 0
}

func (d *Driver) answer(raw []byte) ([]byte, error) {
	req := new(dns.Msg)
	if err := req.Unpack(raw); err != nil {
		return nil, fmt.Errorf("virtionet: unpack dns query: %w", err)
	}

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Compress = false
	resp.RecursionAvailable = true

	for _, q := range req.Question {
		if q.Qtype != dns.TypeA {
			continue
		}
		ip, err := d.lookup(q.Name)
		if err != nil || ip == "" {
			resp.SetRcode(req, dns.RcodeNameError)
			continue
		}
		rr, err := dns.NewRR(fmt.Sprintf("%s A %s", q.Name, ip))
		if err != nil {
			continue
		}
		resp.Answer = append(resp.Answer, rr)
	}
	return resp.Pack()
}

var _ irq.Driver = (*Driver)(nil)

// NewProbeFunc builds a devprobe.ProbeFunc that attaches to an already
// device-stamped VirtIO-MMIO transport at the node's reg region and
// registers a Driver on irqNum, after checking the transport's magic value
// and device type (the vendor id is not checked).
func NewProbeFunc(ctrl irq.Controller, irqNum int, lookup Lookup, logger *slog.Logger) devprobe.ProbeFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(node fdt.Node) error {
		regions := node.Reg()
		if len(regions) == 0 {
			return kernerr.New(kernerr.DevProbeError, "virtio-net: node %q has no reg property", node.Name)
		}
		base := uintptr(regions[0].Address)
		transport := virtiomock.NewGuest(base)
		if transport.Magic() != virtiomock.MagicValue {
			return kernerr.New(kernerr.DevProbeError, "virtio-net: bad magic at %#x", base)
		}
		if transport.DeviceID() != NetworkDeviceID {
			logger.Warn("virtio-mmio: unrecognized device type", "deviceID", transport.DeviceID())
			return nil
		}
		dev := New(transport, lookup, logger)
		if err := ctrl.RegisterDevice(irqNum, dev); err != nil {
			return err
		}
		logger.Info("virtio-net probed", "base", base, "irq", irqNum)
		return nil
	}
}
