// Package bootconfig holds the boot-time constants a real bootloader
// would pass the kernel — architecture, build stamp, hart count, RNG
// seed, dispatch policy selection — parsed with the stdlib flag
// package the way cmd/cc/main.go does, plus an optional board.yaml
// describing the simulated FDT layout.
package bootconfig

import (
	"flag"
	"fmt"
	"strconv"
)

// Arch and BuildMode are fixed for this model; BuildTime is stamped by
// the caller (normally via -ldflags, elided here since nothing links
// this into a release pipeline).
const (
	Arch      = "riscv64"
	BuildMode = "debug"
)

// intFlag tracks whether its value was explicitly set, the same
// "did the user actually pass this" idiom cmd/cc/main.go uses so a
// CLI flag only overrides a board.yaml default when given.
type intFlag struct {
	v   int
	set bool
}

func (f *intFlag) String() string { return strconv.Itoa(f.v) }

func (f *intFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	f.v = v
	f.set = true
	return nil
}

type uint64Flag struct {
	v   uint64
	set bool
}

func (f *uint64Flag) String() string { return strconv.FormatUint(f.v, 10) }

func (f *uint64Flag) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	f.v = v
	f.set = true
	return nil
}

// Config is the fully resolved boot configuration: board.yaml defaults
// overridden by whichever CLI flags were explicitly passed.
type Config struct {
	Arch      string
	BuildTime string
	BuildMode string

	Harts          int
	RandSeed       uint64
	DispatchPolicy string
	BoardPath      string

	hartsSet    bool
	randSeedSet bool
}

// Parse builds a Config from args (normally os.Args[1:]), layering CLI
// flags over the zero-value defaults below. Callers that also loaded a
// board.yaml should call ApplyBoard afterward so file-provided values
// fill in anything the CLI left unset.
func Parse(args []string, buildTime string) (*Config, error) {
	fs := flag.NewFlagSet("kernelsim", flag.ContinueOnError)

	var harts intFlag
	harts.v = 1
	fs.Var(&harts, "harts", "Number of harts to simulate")

	var seed uint64Flag
	fs.Var(&seed, "rand-seed", "Seed for simulated jitter (default: 0)")

	policy := fs.String("dispatch-policy", "min_count", "IRQ dispatch policy: rotate|min_count|min_load")
	boardPath := fs.String("board", "", "Path to a board.yaml describing the simulated FDT layout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch *policy {
	case "rotate", "min_count", "min_load":
	default:
		return nil, fmt.Errorf("bootconfig: unknown dispatch policy %q", *policy)
	}

	cfg := &Config{
		Arch:           Arch,
		BuildTime:      buildTime,
		BuildMode:      BuildMode,
		Harts:          harts.v,
		DispatchPolicy: *policy,
		BoardPath:      *boardPath,
	}
	if seed.set {
		cfg.RandSeed = seed.v
	}
	cfg.hartsSet = harts.set
	cfg.randSeedSet = seed.set
	return cfg, nil
}
