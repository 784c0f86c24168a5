package cli

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/javanstorm/vmbridge/internal/config"
	"github.com/javanstorm/vmbridge/internal/machine"
	"github.com/javanstorm/vmbridge/pkg/hypervisor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show VM configuration and boot history",
	Long:  `Display hypervisor capabilities, configured boot artifacts and the recorded boot history.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if !hypervisor.SupportedPlatform() {
		fmt.Println("Hypervisor: unsupported on this platform")
	} else if hv, err := hypervisor.New(); err != nil {
		fmt.Printf("Hypervisor: unavailable (%v)\n", err)
	} else {
		caps := hv.Host()
		fmt.Println("Hypervisor: Virtualization.framework")
		fmt.Printf("  Max CPUs: %d\n", caps.MaxCPUCount)
		fmt.Printf("  Memory: %s - %s\n",
			units.BytesSize(float64(caps.MinMemorySize)),
			units.BytesSize(float64(caps.MaxMemorySize)))
	}

	fmt.Println()
	fmt.Printf("Requested: %d CPUs, %s memory, %s network\n", cfg.CPUs, cfg.Memory, cfg.NetworkMode)

	fmt.Println()
	fmt.Println("Artifacts:")
	artifacts := []struct {
		kind machine.ArtifactKind
		path string
	}{
		{machine.ArtifactKernel, cfg.KernelPath},
		{machine.ArtifactInitrd, cfg.InitrdPath},
		{machine.ArtifactBoot, cfg.BootImagePath},
		{machine.ArtifactDisk, cfg.DiskImagePath},
	}
	for _, a := range artifacts {
		switch {
		case a.path == "":
			fmt.Printf("  %s: not configured\n", a.kind)
		default:
			if info, err := os.Stat(a.path); err != nil {
				fmt.Printf("  %s: %s (missing)\n", a.kind, a.path)
			} else {
				fmt.Printf("  %s: %s (%s)\n", a.kind, a.path, units.BytesSize(float64(info.Size())))
			}
		}
	}

	fmt.Println()

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("determine paths: %w", err)
	}
	history, err := machine.NewBootRecord(paths.DataDir).Load()
	if err != nil {
		fmt.Printf("History: error loading (%v)\n", err)
		return nil
	}
	if history.BootCount == 0 {
		fmt.Println("History: never booted")
		return nil
	}
	fmt.Println("History:")
	fmt.Printf("  Boot count: %d\n", history.BootCount)
	if !history.LastBoot.IsZero() {
		fmt.Printf("  Last boot: %s\n", history.LastBoot.Format("2006-01-02 15:04:05"))
	}
	if !history.LastShutdown.IsZero() {
		fmt.Printf("  Last shutdown: %s\n", history.LastShutdown.Format("2006-01-02 15:04:05"))
		if history.CleanShutdown {
			fmt.Println("  Shutdown type: clean")
		} else {
			fmt.Println("  Shutdown type: unclean")
		}
	}
	return nil
}
