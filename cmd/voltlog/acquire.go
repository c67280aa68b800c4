package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/voltlog/internal/csvout"
	"github.com/srg/voltlog/internal/devicefactory"
	"github.com/srg/voltlog/pkg/config"
	"github.com/srg/voltlog/session"
)

// acquireFlags holds the command-line overrides for one acquisition
type acquireFlags struct {
	output         string
	threshold      int
	sampleCap      int
	pollInterval   time.Duration
	scanTimeout    time.Duration
	connectTimeout time.Duration
}

func (f *acquireFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "CSV output path (default voltageTest.csv in the working directory)")
	flags.IntVar(&f.threshold, "threshold", 0, "Samples required before the buffer is written (default 1000)")
	flags.IntVar(&f.sampleCap, "cap", 0, "Maximum number of buffered samples (default 2000)")
	flags.DurationVar(&f.pollInterval, "poll-interval", 0, "How often the buffer is checked against the threshold (default 1s)")
	flags.DurationVar(&f.scanTimeout, "scan-timeout", 0, "How long to scan for the sensor (default 5s)")
	flags.DurationVar(&f.connectTimeout, "connect-timeout", 0, "Connection timeout (default 10s)")
}

// apply copies explicitly set flags over the config
func (f *acquireFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Path = f.output
	}
	if flags.Changed("threshold") {
		cfg.Acquisition.Threshold = f.threshold
	}
	if flags.Changed("cap") {
		cfg.Acquisition.Cap = f.sampleCap
	}
	if flags.Changed("poll-interval") {
		cfg.Acquisition.PollInterval = f.pollInterval
	}
	if flags.Changed("scan-timeout") {
		cfg.BLE.ScanTimeout = f.scanTimeout
	}
	if flags.Changed("connect-timeout") {
		cfg.BLE.ConnectTimeout = f.connectTimeout
	}
}

func newAcquireCmd() *cobra.Command {
	opts := &acquireFlags{}
	cmd := &cobra.Command{
		Use:   "acquire [address]",
		Short: "Collect voltage samples from the sensor and write them to CSV",
		Long: `Scans for the sensor, connects, prints its GATT profile and subscribes to
the RX characteristic. Once the buffered sample count reaches the threshold
the samples are decoded and written to the output CSV.

The address defaults to the one in the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcquire(cmd, args, opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func runAcquire(cmd *cobra.Command, args []string, flags *acquireFlags) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Address = args[0]
	}
	flags.apply(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := csvout.ValidatePath(cfg.Output.Path); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	backend, err := devicefactory.Lookup(cfg.Backend)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	opts := session.OptionsFromConfig(cfg)
	opts.Colored = isTerminal(out)

	sess, err := session.New(backend, opts, logger, out)
	if err != nil {
		return err
	}

	progress := newLazyProgress(out, isTerminal(out), "Collecting samples",
		[]string{session.PhaseScanning, session.PhaseConnecting},
		session.PhaseWriting, session.PhaseDone)
	defer progress.Stop()
	sess.OnProgress(progress.Callback)

	ctx, cancel := withInterrupt(cmd.Context(), out, "acquisition")
	defer cancel()

	logger.WithFields(logrus.Fields{
		"address":   cfg.Address,
		"backend":   backend.Name,
		"threshold": cfg.Acquisition.Threshold,
		"cap":       cfg.Acquisition.Cap,
		"output":    cfg.Output.Path,
	}).Info("Starting acquisition")

	res, err := sess.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %d samples to %s\n", res.Samples, res.Path)
	return nil
}
