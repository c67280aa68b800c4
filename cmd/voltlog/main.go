package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/srg/voltlog/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand performs a full acquisition.
func newRootCmd() *cobra.Command {
	acquireOpts := &acquireFlags{}

	rootCmd := &cobra.Command{
		Use:   "voltlog [address]",
		Short: "Capture voltage samples from a BLE sensor into CSV",
		Long: `Connects to a BLE voltage sensor over the Nordic UART service, collects
the 3-byte hex readings it notifies on RX and writes them to a CSV file.

- Scan for the sensor by address and connect
- Print the GATT profile of the connected sensor
- Buffer readings until the threshold is reached, then write the CSV and disconnect

Use 'voltlog scan' to find nearby devices and 'voltlog inspect' to dump a profile.`,
		Args:    cobra.MaximumNArgs(1),
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcquire(cmd, args, acquireOpts)
		},
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/voltlog/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "BLE backend (go-ble, tinygo)")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	acquireOpts.register(rootCmd)

	rootCmd.AddCommand(newAcquireCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newInspectCmd())

	return rootCmd
}

// reportError prints err for the user and returns the process exit code
func reportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	// Ctrl+C is a normal exit, not an error - exit silently
	if errors.Is(err, context.Canceled) {
		return 0
	}
	// the session already told the user what happened
	var reported *session.ReportedError
	if errors.As(err, &reported) {
		return 0
	}
	fmt.Fprintf(w, "ERROR: %s\n", FormatUserError(err))
	return 1
}

func main() {
	if code := reportError(os.Stderr, newRootCmd().Execute()); code != 0 {
		os.Exit(code)
	}
}
