// Package devprobe walks a parsed FDT and calls the registered prober for
// every node matching its device_type or compatible identity, the Go
// analogue of the linker-section device-prober registry the original
// kernel builds at compile time.
package devprobe

import (
	"sync"

	"github.com/jrinx/kernelsim/internal/fdt"
	"github.com/jrinx/kernelsim/internal/kernerr"
)

// Kind selects which FDT property a DevIdent matches against.
type Kind int

const (
	// ByDeviceType matches nodes whose "device_type" property equals Value.
	ByDeviceType Kind = iota
	// ByCompatible matches nodes whose "compatible" list contains Value.
	ByCompatible
)

// DevIdent identifies the class of node a prober claims, mirroring the
// original's `DevIdent::{DeviceType, Compatible}` enum.
type DevIdent struct {
	Kind  Kind
	Value string
}

// ProbeFunc initializes one matching node. Returning an error aborts the
// remaining probe sequence (P3).
type ProbeFunc func(node fdt.Node) error

type entry struct {
	ident DevIdent
	probe ProbeFunc
}

// Registry holds the set of registered probers and the order ProbeAll
// runs them in. Unlike the original's process-wide linker-section list,
// Registry is a value so tests can build an isolated one per case.
type Registry struct {
	mu      sync.Mutex
	entries []entry

	rootCompatible string
	haveRoot       bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register adds a prober for ident. Registration order is preserved for
// any prober not among the three reordered to the front by ProbeAll
// (cpu-intc, PLIC, memory).
func (r *Registry) Register(ident DevIdent, probe ProbeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{ident: ident, probe: probe})
}

// RootCompatible returns the first compatible string of the tree root
// captured by the first ProbeAll call; later calls leave it unchanged.
func (r *Registry) RootCompatible() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rootCompatible, r.haveRoot
}

var (
	identCPUIntc = DevIdent{Kind: ByCompatible, Value: "riscv,cpu-intc"}
	plicIdents   = []string{"sifive,plic-1.0.0", "riscv,plic0"}
	identMemory  = DevIdent{Kind: ByDeviceType, Value: "memory"}
)

// ProbeAll captures the tree root's compatible string once, reorders the
// registered probers so cpu-intc runs first, a PLIC prober second, a
// memory prober third (everything else keeps registration order), then
// runs each prober over every FDT node it matches. The first probe
// failure aborts the remaining sequence.
func (r *Registry) ProbeAll(tree fdt.Node) error {
	r.mu.Lock()
	if !r.haveRoot {
		if cs := tree.Compatible(); len(cs) > 0 {
			r.rootCompatible = cs[0]
		}
		r.haveRoot = true
	}
	ordered := append([]entry(nil), r.entries...)
	r.mu.Unlock()

	ordered = reorder(ordered)

	nodes := tree.AllNodes()
	for _, e := range ordered {
		for _, n := range nodes {
			if !matches(n, e.ident) {
				continue
			}
			if err := e.probe(n); err != nil {
				return kernerr.New(kernerr.DevProbeError, "probing %s %q: %v", identKindName(e.ident.Kind), e.ident.Value, err)
			}
		}
	}
	return nil
}

func matches(n fdt.Node, ident DevIdent) bool {
	switch ident.Kind {
	case ByDeviceType:
		dt, ok := n.DeviceType()
		return ok && dt == ident.Value
	case ByCompatible:
		return n.HasCompatible(ident.Value)
	default:
		return false
	}
}

func identKindName(k Kind) string {
	if k == ByDeviceType {
		return "device_type"
	}
	return "compatible"
}

// reorder swaps the cpu-intc, PLIC, and memory probers (if registered) to
// the front of the list, in that order, leaving the rest in place —
// the Go equivalent of the original's three `Vec::swap` calls.
func reorder(entries []entry) []entry {
	swapFirst := func(pred func(DevIdent) bool, pos int) {
		if pos >= len(entries) {
			return
		}
		for i := pos; i < len(entries); i++ {
			if pred(entries[i].ident) {
				entries[pos], entries[i] = entries[i], entries[pos]
				return
			}
		}
	}

	swapFirst(func(id DevIdent) bool { return id == identCPUIntc }, 0)
	swapFirst(func(id DevIdent) bool {
		if id.Kind != ByCompatible {
			return false
		}
		for _, p := range plicIdents {
			if id.Value == p {
				return true
			}
		}
		return false
	}, 1)
	swapFirst(func(id DevIdent) bool { return id == identMemory }, 2)

	return entries
}
