// Package cli provides the command-line interface for vmbridge.
package cli

import (
	"fmt"

	"github.com/javanstorm/vmbridge/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vmbridge",
	Short: "vmbridge - single-VM lifecycle controller",
	Long: `vmbridge boots a Linux guest from a kernel, initrd, boot image and
persistent disk, bridges its serial console to your terminal or a GUI
window, and tracks the machine through its lifecycle.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		switch cmd.Name() {
		case "version", "completion":
			return nil
		}
		return config.Load()
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
}
