package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/javanstorm/vmbridge/internal/config"
	"github.com/javanstorm/vmbridge/internal/gui"
	"github.com/javanstorm/vmbridge/internal/machine"
	"github.com/javanstorm/vmbridge/internal/terminal"
	"github.com/javanstorm/vmbridge/internal/timing"
	"github.com/javanstorm/vmbridge/pkg/hypervisor"
)

// Warm startup timing targets (VMB_TIMING=1):
//   - config_load:       <50ms   (viper config + env)
//   - hypervisor_init:   <100ms  (framework handle, capability query)
//   - controller_create: <50ms   (console bridge pipes)
//   - vm_start:          <2000ms (hypervisor-dependent, kernel boot)
//   - attach:            <100ms  (raw mode or GUI window)
//
// Run with VMB_TIMING=1 to see the actual breakdown.

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the VM and attach to its console",
	Long: `Boot the VM from the configured artifacts and attach to its serial
console. By default a GUI terminal window opens; with --headless the
console is bridged to the calling terminal instead (exit with Ctrl+]
pressed twice).`,
	RunE: runRun,
}

var (
	runHeadless bool
	runKernel   string
	runInitrd   string
	runBoot     string
	runDisk     string
)

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "attach to the calling terminal instead of opening a window")
	runCmd.Flags().StringVar(&runKernel, "kernel", "", "kernel image path (overrides config)")
	runCmd.Flags().StringVar(&runInitrd, "initrd", "", "initial ramdisk path (overrides config)")
	runCmd.Flags().StringVar(&runBoot, "boot-image", "", "boot image path (overrides config)")
	runCmd.Flags().StringVar(&runDisk, "disk-image", "", "disk image path (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	var timer *timing.Timer
	if os.Getenv("VMB_TIMING") == "1" {
		timer = timing.New()
	}

	cfg := config.Global
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	memory, err := cfg.MemoryBytes()
	if err != nil {
		return err
	}
	if timer != nil {
		timer.Mark("config_load")
	}

	hv, err := hypervisor.New()
	if err != nil {
		return fmt.Errorf("initialize hypervisor: %w", err)
	}
	if timer != nil {
		timer.Mark("hypervisor_init")
	}

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("determine paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	policy := machine.Policy{
		CPUCount:    cfg.CPUs,
		MemorySize:  memory,
		NetworkMode: cfg.NetworkMode,
	}
	ctrl, err := machine.NewController(hv, policy, paths.DataDir)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.SetArtifact(machine.ArtifactKernel, firstNonEmpty(runKernel, cfg.KernelPath))
	ctrl.SetArtifact(machine.ArtifactInitrd, firstNonEmpty(runInitrd, cfg.InitrdPath))
	ctrl.SetArtifact(machine.ArtifactBoot, firstNonEmpty(runBoot, cfg.BootImagePath))
	ctrl.SetArtifact(machine.ArtifactDisk, firstNonEmpty(runDisk, cfg.DiskImagePath))

	if set := ctrl.Artifacts(); !set.Complete() {
		return fmt.Errorf("missing boot artifacts; set them in %s or pass flags", paths.ConfigFile)
	}
	if timer != nil {
		timer.Mark("controller_create")
	}

	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("start VM: %w", err)
	}
	if timer != nil {
		timer.Mark("vm_start")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Log lifecycle transitions in the background; the channel only ever
	// holds the most recent state.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-ctrl.Notify():
				logrus.WithField("state", st).Debug("lifecycle")
				if st.Terminal() {
					cancel()
					return
				}
			}
		}
	}()

	vmOut, vmIn := ctrl.Console()

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			cancel()
			if err := ctrl.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Stop error: %v\n", err)
			}
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		shutdown()
	}()

	if timer != nil {
		timer.Mark("attach")
		timer.Report(os.Stderr)
	}

	if runHeadless {
		if !terminal.IsTTY() {
			return errors.New("--headless requires a terminal")
		}
		err := terminal.Current().Attach(ctx, vmIn, vmOut)
		shutdown()
		if err != nil && !errors.Is(err, terminal.ErrEscapeSequence) && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	// Blocks until the window is closed.
	gui.RunTerminal(vmIn, vmOut, "vmbridge", shutdown)
	shutdown()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
