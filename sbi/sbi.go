// Package sbi models the two Supervisor Binary Interface calls the core
// needs — inter-processor interrupts and system reset — as a pluggable
// interface, since this model has no real SBI firmware underneath it.
package sbi

import (
	"fmt"
	"log/slog"
	"sync"
)

// ResetReason mirrors the SBI System Reset extension's reset-type
// values this core actually issues.
type ResetReason int

const (
	// ResetShutdown is a clean shutdown.
	ResetShutdown ResetReason = iota
	// ResetSystemFailure is the reason a panic handler halts with.
	ResetSystemFailure
)

func (r ResetReason) String() string {
	switch r {
	case ResetShutdown:
		return "shutdown"
	case ResetSystemFailure:
		return "system failure"
	default:
		return fmt.Sprintf("reset(%d)", int(r))
	}
}

// Provider is the SBI surface the core calls into: send an IPI to a set
// of harts, or halt the machine with a reset reason. A real deployment
// backs this with the actual SBI ecall ABI; tests back it with a fake
// that just records calls.
type Provider interface {
	SendIPI(hartMask uint64) error
	SystemReset(reason ResetReason) error
}

// NullProvider is a Provider that logs every call and never actually
// halts the process — the default for a hosted simulation, where there
// is no real firmware to hand control to.
type NullProvider struct {
	mu      sync.Mutex
	logger  *slog.Logger
	ipis    []uint64
	resets  []ResetReason
	onReset func(ResetReason)
}

// NewNullProvider builds a NullProvider. onReset, if non-nil, is called
// synchronously from SystemReset after the call is recorded;
// cmd/kernelsim's hook only logs the halt and does not exit the process.
func NewNullProvider(logger *slog.Logger, onReset func(ResetReason)) *NullProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &NullProvider{logger: logger, onReset: onReset}
}

// SendIPI records hartMask and logs it; this model's cross-hart
// scheduler wakeups are delivered in-process, so there is no real
// interrupt to raise.
func (p *NullProvider) SendIPI(hartMask uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ipis = append(p.ipis, hartMask)
	p.logger.Info("sbi: send_ipi", "hartMask", hartMask)
	return nil
}

// SystemReset records reason, logs it, and invokes the onReset hook.
func (p *NullProvider) SystemReset(reason ResetReason) error {
	p.mu.Lock()
	p.resets = append(p.resets, reason)
	hook := p.onReset
	p.mu.Unlock()
	p.logger.Warn("sbi: system_reset", "reason", reason.String())
	if hook != nil {
		hook(reason)
	}
	return nil
}

// IPIs returns every hart mask passed to SendIPI so far, in order.
func (p *NullProvider) IPIs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.ipis...)
}

// Resets returns every reason passed to SystemReset so far, in order.
func (p *NullProvider) Resets() []ResetReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ResetReason(nil), p.resets...)
}

var _ Provider = (*NullProvider)(nil)
