package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "firstdate",
	Short: "Speed-date scheduling and credit settlement engine",
	Long: `firstdate runs the speed-date lifecycle engine: date requests with
credit escrow, the locked-call state machine, attendance-based settlement,
no-show standing, and post-date mutual-interest matching.`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
