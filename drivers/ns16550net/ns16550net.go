// Package ns16550net is a toy "console-over-IP" driver: a frame carrying
// an IPv4-wrapped console payload arrives, gets parsed with
// golang.org/x/net/ipv4 the way internal/netstack hand-rolls its own
// IPv4 header decode, and the payload is drained into the same
// console-buffer shape drivers/ns16550 exposes. It exists to exercise
// the external-IRQ round trip with a second, independent driver wired
// through the same IRQ manager.
package ns16550net

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/jrinx/kernelsim/internal/irq"
)

// localSrc/localDst are placeholder loopback-range addresses; this
// driver never routes anything, it just needs well-formed IPv4 header
// fields for ParseHeader to accept.
var (
	localSrc = net.IPv4(127, 0, 0, 1)
	localDst = net.IPv4(127, 0, 0, 2)
)

// Driver decodes queued IPv4 frames and exposes their payload as a
// console byte stream.
type Driver struct {
	mu sync.Mutex

	frames [][]byte
	rx     []byte

	lastHeader *ipv4.Header
}

// New builds an empty Driver.
func New() *Driver {
	return &Driver{}
}

// Name implements irq.Driver.
func (d *Driver) Name() string { return "ns16550net" }

// EnqueueFrame simulates a raw IPv4 frame arriving on the device's
// receive path, to be decoded the next time HandleIrq runs.
func (d *Driver) EnqueueFrame(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame)
}

// HandleIrq parses every queued frame's IPv4 header and appends its
// payload to the console read buffer. A frame that fails to parse is
// dropped, matching spec.md §7's "malformed driver state is logged and
// ignored" propagation policy.
func (d *Driver) HandleIrq(irqNum int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, frame := range d.frames {
		h, err := ipv4.ParseHeader(frame)
		if err != nil {
			slog.Default().Warn("ns16550net: dropping malformed frame", "err", err)
			continue
		}
		d.lastHeader = h
		if h.Len > len(frame) {
			continue
		}
		d.rx = append(d.rx, frame[h.Len:]...)
	}
	d.frames = nil
	return 0
}

// ReadBuffered pops the oldest byte off the decoded console buffer.
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

// LastHeader returns the most recently parsed IPv4 header, for tests and
// diagnostics.
func (d *Driver) LastHeader() (*ipv4.Header, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastHeader, d.lastHeader != nil
}

var _ irq.Driver = (*Driver)(nil)

// BuildFrame constructs a minimal IPv4 frame carrying payload as its
// body, the test/demo helper standing in for a frame a real NIC would
// have assembled. TTL and protocol are fixed at benign placeholder
// values; nothing downstream of HandleIrq inspects them.
func BuildFrame(payload []byte) ([]byte, error) {
	h := &ipv4.Header{
		Version:  4,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(payload),
		TTL:      64,
		Protocol: 253, // IANA "use for experimentation"
		Src:      localSrc,
		Dst:      localDst,
	}
	raw, err := h.Marshal()
	if err != nil {
		return nil, fmt.Errorf("ns16550net: marshal header: %w", err)
	}
	return append(raw, payload...), nil
}
