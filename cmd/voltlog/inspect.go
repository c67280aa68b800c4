package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/voltlog/inspector"
	"github.com/srg/voltlog/internal/devicefactory"
	"github.com/srg/voltlog/scanner"
)

type inspectFlags struct {
	connectTimeout time.Duration
	scanTimeout    time.Duration
	json           bool
}

func newInspectCmd() *cobra.Command {
	opts := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <device-address>",
		Short: "Inspect services and characteristics of a BLE device",
		Long: `Connects to a BLE device by address, discovers its services and
characteristics and prints them with their well-known names and properties.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], opts)
		},
	}

	cmd.Flags().DurationVar(&opts.connectTimeout, "connect-timeout", 0, "Connection timeout (default from config, 10s)")
	cmd.Flags().DurationVar(&opts.scanTimeout, "scan-timeout", 0, "How long to scan for the device (default from config, 5s)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	return cmd
}

func runInspect(cmd *cobra.Command, address string, opts *inspectFlags) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("connect-timeout") {
		cfg.BLE.ConnectTimeout = opts.connectTimeout
	}
	if cmd.Flags().Changed("scan-timeout") {
		cfg.BLE.ScanTimeout = opts.scanTimeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	backend, err := devicefactory.Lookup(cfg.Backend)
	if err != nil {
		return err
	}
	if backend.Release != nil {
		defer func() { _ = backend.Release() }()
	}

	out := cmd.OutOrStdout()
	ctx, cancel := withInterrupt(cmd.Context(), out, "inspection")
	defer cancel()

	progressOut := io.Discard
	if isTerminal(out) {
		progressOut = out
	}
	progress := NewProgressPrinter(progressOut, fmt.Sprintf("Inspecting device %s", address), "Scanning", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	s, err := scanner.NewScanner(backend, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}
	dev, err := s.Find(ctx, address, cfg.BLE.ScanTimeout, nil)
	if err != nil {
		return err
	}

	report, err := inspector.InspectDevice(ctx, dev, &inspector.InspectOptions{ConnectTimeout: cfg.BLE.ConnectTimeout},
		logger, progress.Callback(), inspector.Inspect)
	progress.Stop()
	if err != nil {
		return err
	}

	if opts.json {
		return report.WriteJSON(out)
	}
	return report.WriteText(out, isTerminal(out))
}
