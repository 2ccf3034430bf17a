// Command kernelsim boots a single simulated RISC-V machine: it builds
// an in-process FDT from board.yaml (or a built-in default), probes it
// into a PLIC/INTC/driver set, starts the per-hart cooperative
// scheduler, and runs until the bootstrap inspector's task set drains —
// the hosted analogue of cold_init through a clean shutdown.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/jrinx/kernelsim/bootconfig"
	"github.com/jrinx/kernelsim/drivers/ns16550"
	"github.com/jrinx/kernelsim/drivers/virtionet"
	"github.com/jrinx/kernelsim/internal/devprobe"
	"github.com/jrinx/kernelsim/internal/dispatch"
	"github.com/jrinx/kernelsim/internal/fdt"
	"github.com/jrinx/kernelsim/internal/hostshim"
	"github.com/jrinx/kernelsim/internal/intc"
	"github.com/jrinx/kernelsim/internal/irq"
	"github.com/jrinx/kernelsim/internal/plic"
	"github.com/jrinx/kernelsim/internal/sched"
	"github.com/jrinx/kernelsim/internal/timerq"
	"github.com/jrinx/kernelsim/internal/trap"
	"github.com/jrinx/kernelsim/sbi"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "kernelsim: %v\n", err)
		os.Exit(1)
	}
}

// plicRegionSize is large enough to hold the priority array, the
// enable-bitmap region, and every per-context claim/threshold window
// any board this model boots will need.
const plicRegionSize = 0x300000

// staticLookup resolves the one hostname the default board's virtio-net
// stand-in answers queries for; a real deployment would wire this to
// whatever directory service backs the guest, but nothing in this model
// needs more than a fixed table.
func staticLookup(name string) (string, error) {
	if name == "kernelsim.local." {
		return "10.0.2.15", nil
	}
	return "", fmt.Errorf("no such host %q", name)
}

func run(args []string) error {
	logger := slog.Default()

	cfg, err := bootconfig.Parse(args, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	var board *bootconfig.Board
	if cfg.BoardPath != "" {
		board, err = bootconfig.LoadBoard(cfg.BoardPath)
		if err != nil {
			return err
		}
	} else {
		board = bootconfig.DefaultBoard()
	}
	cfg.ApplyBoard(board)

	logger.Info("kernelsim booting",
		"arch", cfg.Arch, "buildMode", cfg.BuildMode, "buildTime", cfg.BuildTime,
		"harts", cfg.Harts, "dispatchPolicy", cfg.DispatchPolicy)

	tree := board.BuildFDT()

	manager := irq.New(logger)
	intcCtl := intc.New(cfg.Harts)

	plicRoot := plic.RootVirtio
	if board.PlicRoot == "sifive" {
		plicRoot = plic.RootSifive
	}

	var plicCtl *plic.Controller
	registry := devprobe.New()

	registry.Register(devprobe.DevIdent{Kind: devprobe.ByCompatible, Value: "riscv,cpu-intc"},
		func(fdt.Node) error { return nil })

	registry.Register(devprobe.DevIdent{Kind: devprobe.ByCompatible, Value: board.PlicCompatible},
		func(node fdt.Node) error {
			regions := node.Reg()
			if len(regions) == 0 {
				return fmt.Errorf("plic node has no reg property")
			}
			rf, err := hostshim.NewRegisterFile(plicRegionSize)
			if err != nil {
				return err
			}
			plicCtl = plic.New(rf.Base(), cfg.Harts*2+1, plicRoot, manager, logger)
			intcCtl.BindPlic(plicCtl)
			return nil
		})

	bar := progressbar.Default(int64(len(board.Devices)), "probing devices")
	defer bar.Close()

	for _, dev := range board.Devices {
		dev := dev
		switch dev.Compatible {
		case "ns16550a":
			registry.Register(devprobe.DevIdent{Kind: devprobe.ByCompatible, Value: dev.Compatible},
				func(node fdt.Node) error {
					if plicCtl == nil {
						return fmt.Errorf("ns16550a probed before plic")
					}
					if err := ns16550.NewProbeFunc(plicCtl, dev.Irq, logger)(node); err != nil {
						return err
					}
					return bar.Add(1)
				})
		case "virtio,mmio":
			registry.Register(devprobe.DevIdent{Kind: devprobe.ByCompatible, Value: dev.Compatible},
				func(node fdt.Node) error {
					if plicCtl == nil {
						return fmt.Errorf("virtio,mmio probed before plic")
					}
					if err := virtionet.NewProbeFunc(plicCtl, dev.Irq, staticLookup, logger)(node); err != nil {
						return err
					}
					return bar.Add(1)
				})
		default:
			logger.Warn("unrecognized device compatible, skipping", "compatible", dev.Compatible)
		}
	}

	if err := registry.ProbeAll(tree); err != nil {
		return fmt.Errorf("device probe: %w", err)
	}

	for hart := 0; hart < cfg.Harts; hart++ {
		if err := intcCtl.Enable(hart, int(intc.SupervisorExternal)); err != nil {
			return fmt.Errorf("enable external interrupt on hart %d: %w", hart, err)
		}
	}

	timers := timerq.NewRegistry(cfg.Harts)
	schedRegistry := sched.NewRegistry(cfg.Harts)

	dispatchCtx := dispatch.Context{
		NHarts:             cfg.Harts,
		Controller:         plicCtl,
		TaskPriority:       schedRegistry.TaskPriority,
		HartInterruptCount: intcCtl.InterruptCount,
		IrqCount:           plicCtl.IrqCount,
	}

	var policy dispatch.Policy
	switch cfg.DispatchPolicy {
	case "rotate":
		policy = dispatch.NewRotatePolicy(dispatch.IrqUART)
	case "min_load":
		policy = dispatch.NewMinLoadPolicy()
	default:
		policy = dispatch.NewMinCountPolicy()
	}

	resetProvider := sbi.NewNullProvider(logger, func(reason sbi.ResetReason) {
		logger.Warn("halting on sbi system_reset", "reason", reason.String())
	})

	dispatcher := dispatch.NewDispatcher(dispatchCtx, policy, timers.Queue(0), hostshim.MonotonicNow, func(err error) {
		logger.Warn("dispatch tick failed", "err", err)
	})
	dispatcher.Start()

	trapDispatchers := make([]*trap.Dispatcher, cfg.Harts)
	for hart := 0; hart < cfg.Harts; hart++ {
		hart := hart
		td := trap.New(hart, intcCtl, timers.Queue(hart), logger)
		td.ClearSoftPending = func() {}
		td.RearmTimer = func(deadline int64, ok bool) {
			if ok {
				logger.Debug("timer rearmed", "hart", hart, "deadline", deadline)
			}
		}
		trapDispatchers[hart] = td

		rt := schedRegistry.Runtime(hart)
		boot := rt.Bootstrap()
		exec := sched.NewExecutor(0)
		if err := boot.RegisterExecutor(exec); err != nil {
			return fmt.Errorf("register bootstrap executor on hart %d: %w", hart, err)
		}

		exec.Spawn(sched.NewFuncTask(0, func() sched.TaskStatus {
			logger.Info("hart boot task running", "hart", hart)
			return sched.TaskFinished
		}))
		exec.Close()
	}

	for hart := 0; hart < cfg.Harts; hart++ {
		rt := schedRegistry.Runtime(hart)
		rt.Start(func() { time.Sleep(time.Millisecond) })
		if rt.Status() != sched.RuntimeEndpoint {
			return fmt.Errorf("hart %d runtime did not reach endpoint status", hart)
		}
	}

	for hart, td := range trapDispatchers {
		logger.Info("hart trap counters", "hart", hart,
			"timerInterrupts", td.TimerCount(), "softInterrupts", td.SoftCount())
	}

	logger.Info("kernelsim: all harts reached their endpoint, shutting down")
	return resetProvider.SystemReset(sbi.ResetShutdown)
}
