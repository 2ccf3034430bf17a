package virtionet

import (
	"errors"
	"testing"

	"github.com/miekg/dns"

	"github.com/jrinx/kernelsim/internal/hostshim"

	"github.com/jrinx/kernelsim/drivers/virtiomock"
)

func newTestDriver(t *testing.T, lookup Lookup) (*Driver, *virtiomock.Transport) {
	t.Helper()
	rf, err := hostshim.NewRegisterFile(0x100)
	if err != nil {
		t.Fatalf("NewRegisterFile: %v", err)
	}
	t.Cleanup(func() { rf.Close() })
	transport := virtiomock.NewDevice(rf.Base(), NetworkDeviceID)
	return New(transport, lookup, nil), transport
}

func packQuery(t *testing.T, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	raw, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return raw
}

func TestHandleIrqAnswersQueuedQuery(t *testing.T) {
	lookup := func(name string) (string, error) {
		if name == "kernelsim.test." {
			return "10.0.0.1", nil
		}
		return "", errors.New("no such host")
	}
	d, transport := newTestDriver(t, lookup)

	d.EnqueueQuery(packQuery(t, "kernelsim.test."))
	d.HandleIrq(1)

	raw, ok := d.PopReply()
	if !ok {
		t.Fatal("expected a queued reply")
	}
	resp := new(dns.Msg)
	if err := resp.Unpack(raw); err != nil {
		t.Fatalf("Unpack reply: %v", err)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("len(Answer) = %d, want 1", len(resp.Answer))
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok {
		t.Fatalf("Answer[0] type = %T, want *dns.A", resp.Answer[0])
	}
	if got := a.A.String(); got != "10.0.0.1" {
		t.Fatalf("A = %s, want 10.0.0.1", got)
	}

	if got := transport.InterruptStatus(); got != 0 {
		t.Fatalf("InterruptStatus() after ack = %#x, want 0", got)
	}
}

func TestHandleIrqUnknownNameReturnsNameError(t *testing.T) {
	lookup := func(name string) (string, error) { return "", errors.New("no such host") }
	d, _ := newTestDriver(t, lookup)

	d.EnqueueQuery(packQuery(t, "unknown.test."))
	d.HandleIrq(1)

	raw, ok := d.PopReply()
	if !ok {
		t.Fatal("expected a queued reply")
	}
	resp := new(dns.Msg)
	if err := resp.Unpack(raw); err != nil {
		t.Fatalf("Unpack reply: %v", err)
	}
	if resp.Rcode != dns.RcodeNameError {
		t.Fatalf("Rcode = %d, want RcodeNameError", resp.Rcode)
	}
}

func TestHandleIrqDrainsQueueAndRaisesNoFurtherReplies(t *testing.T) {
	lookup := func(name string) (string, error) { return "127.0.0.1", nil }
	d, _ := newTestDriver(t, lookup)

	d.EnqueueQuery(packQuery(t, "a.test."))
	d.HandleIrq(1)
	if _, ok := d.PopReply(); !ok {
		t.Fatal("expected first reply")
	}
	if _, ok := d.PopReply(); ok {
		t.Fatal("expected queue drained after single pop")
	}

	d.HandleIrq(1)
	if _, ok := d.PopReply(); ok {
		t.Fatal("expected no reply when no query was enqueued")
	}
}
