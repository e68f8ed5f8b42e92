// Package cli defines the lexreview-engine command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lexreview/engine/internal/engine"
)

const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "lexreview-engine",
	Short: "Contract redline review engine",
	Long:  "lexreview-engine reconciles tracked edits against contract sections and drives AI-assisted review over a JSON-RPC host boundary.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print engine and protocol versions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "lexreview-engine %s (api %s)\n", engine.EngineVersion, engine.APIVersion)
	},
}
