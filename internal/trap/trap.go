// Package trap implements the single trap vector (C11): decoding the
// supervisor cause register and routing to the timer, software, external,
// or exception path.
package trap

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jrinx/kernelsim/internal/intc"
	"github.com/jrinx/kernelsim/internal/timerq"
)

// interruptBit is scause's top bit as rv64 lays it out (bit 63): set, the low
// bits name an interrupt; clear, they name an exception. Mirrors the
// teacher's own HandleTrap, which splits `cause` the same way:
// `isInterrupt := (cause >> 63) != 0`.
const interruptBit = uint64(1) << 63

// Supervisor-level cause codes this core's single trap vector recognises.
// Numbering matches the RISC-V privileged spec and internal/intc's sie
// bit positions (SupervisorSoft=1, SupervisorTimer=5, SupervisorExternal=9).
const (
	CauseSupervisorSoftware = 1
	CauseSupervisorTimer    = 5
	CauseSupervisorExternal = 9
	CauseBreakpoint         = 3
)

// Reason names which of the four paths a trap was routed to, for use in
// panic messages and logging.
type Reason int

const (
	ReasonTimerInterrupt Reason = iota
	ReasonSoftwareInterrupt
	ReasonExternalInterrupt
	ReasonException
)

func (r Reason) String() string {
	switch r {
	case ReasonTimerInterrupt:
		return "timer interrupt"
	case ReasonSoftwareInterrupt:
		return "software interrupt"
	case ReasonExternalInterrupt:
		return "external interrupt"
	case ReasonException:
		return "exception"
	default:
		return fmt.Sprintf("trap.Reason(%d)", int(r))
	}
}

// Dispatcher is the per-hart trap vector. Interrupts are disabled for its
// whole body; only a handler's own code may re-enable them (none in this
// core do), so Dispatch never itself re-enters.
type Dispatcher struct {
	hart  int
	intc  *intc.Controller
	timer *timerq.Queue

	// RearmTimer sets the next stimecmp comparator to deadline. Called
	// with ok=false when the timed-event queue has drained, meaning
	// "arm for never" (the hosted substitute for stimecmp = infinity).
	RearmTimer func(deadline int64, ok bool)

	// ClearSoftPending clears the hart's pending software-interrupt bit
	// (sip.SSIP on real hardware). Required because this model has no
	// CSR to write directly.
	ClearSoftPending func()

	timerCount atomic.Uint64
	softCount  atomic.Uint64

	logger *slog.Logger
}

// New builds a Dispatcher for hart, delegating external interrupts to
// intcCtl and draining timed events from q.
func New(hart int, intcCtl *intc.Controller, q *timerq.Queue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{hart: hart, intc: intcCtl, timer: q, logger: logger}
}

// TimerCount returns the number of timer interrupts handled on this hart.
func (d *Dispatcher) TimerCount() uint64 { return d.timerCount.Load() }

// SoftCount returns the number of software interrupts handled on this hart.
func (d *Dispatcher) SoftCount() uint64 { return d.softCount.Load() }

// Dispatch decodes cause and routes to the matching handler. now is the
// caller's monotonic clock reading, used to drain the timed-event queue
// on the timer path. Breakpoints and any other exception panic with the
// trap reason, matching the core's single terminal exception handler.
func (d *Dispatcher) Dispatch(cause uint64, now int64) {
	if cause&interruptBit == 0 {
		panic(fmt.Sprintf("hart %d: %s: cause=%d", d.hart, ReasonException, cause))
	}

	code := cause &^ interruptBit
	switch code {
	case CauseSupervisorTimer:
		d.handleTimer(now)
	case CauseSupervisorSoftware:
		d.handleSoftware()
	case CauseSupervisorExternal:
		d.handleExternal()
	default:
		panic(fmt.Sprintf("hart %d: unrecognised interrupt cause=%d", d.hart, code))
	}
}

func (d *Dispatcher) handleTimer(now int64) {
	d.timerCount.Add(1)
	if d.timer != nil {
		d.timer.Tick(now)
	}
	if d.RearmTimer == nil {
		return
	}
	if d.timer == nil {
		d.RearmTimer(0, false)
		return
	}
	deadline, ok := d.timer.NextDeadline()
	d.RearmTimer(deadline, ok)
}

func (d *Dispatcher) handleSoftware() {
	d.softCount.Add(1)
	if d.ClearSoftPending != nil {
		d.ClearSoftPending()
	}
}

func (d *Dispatcher) handleExternal() {
	if d.intc == nil {
		d.logger.Warn("external interrupt with no bound INTC", "hart", d.hart)
		return
	}
	d.intc.HandleIrq(d.hart)
}
