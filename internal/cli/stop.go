package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running VM",
	Long:  `Stop the running VM gracefully. Currently only works when the VM is running in foreground.`,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	// VMs run in foreground for now; this is a placeholder for daemon mode.
	fmt.Println("VM is not running in daemon mode.")
	fmt.Println("Use Ctrl+C to stop a foreground VM, or run 'vmbridge run' to start one.")
	return nil
}
