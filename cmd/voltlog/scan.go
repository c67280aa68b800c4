package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/devicefactory"
	"github.com/srg/voltlog/scanner"
)

type scanFlags struct {
	duration    time.Duration
	format      string
	services    []string
	allowList   []string
	blockList   []string
	noDuplicate bool
}

func newScanCmd() *cobra.Command {
	opts := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Use it to find the sensor address before running an acquisition. Devices are
listed with their names, addresses, RSSI values and advertised services.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 5*time.Second, "Scan duration (0 scans until Ctrl+C)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVarP(&opts.services, "services", "s", nil, "Filter by service UUIDs")
	cmd.Flags().StringSliceVar(&opts.allowList, "allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSliceVar(&opts.blockList, "block", nil, "Hide devices with these addresses")
	cmd.Flags().BoolVar(&opts.noDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanFlags) error {
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", opts.format)
	}

	var serviceUUIDs []string
	if len(opts.services) > 0 {
		var err error
		serviceUUIDs, err = device.ValidateUUID(opts.services...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
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

	s, err := scanner.NewScanner(backend, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	out := cmd.OutOrStdout()
	ctx, cancel := withInterrupt(cmd.Context(), out, "scan")
	defer cancel()

	progressOut := io.Discard
	if isTerminal(out) {
		progressOut = out
	}
	progress := NewCountdownProgressPrinter(progressOut, "Scanning for BLE devices", "Scanning", opts.duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	devices, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:        opts.duration,
		DuplicateFilter: opts.noDuplicate,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       opts.allowList,
		BlockList:       opts.blockList,
	}, progress.Callback())
	progress.Stop()

	// an interrupted scan still reports what it found
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}

	entries := sortedEntries(devices)
	if opts.format == "json" {
		return displayDevicesJSON(out, entries)
	}
	return displayDevicesTable(out, entries)
}

// sortedEntries orders devices by name, unnamed devices last, then by address
func sortedEntries(devices map[string]scanner.DeviceEntry) []scanner.DeviceEntry {
	list := make([]scanner.DeviceEntry, 0, len(devices))
	for _, e := range devices {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		ni, nj := list[i].Device.Name(), list[j].Device.Name()
		if (ni == "") != (nj == "") {
			return nj == ""
		}
		if ni != nj {
			return ni < nj
		}
		return list[i].Device.Address() < list[j].Device.Address()
	})
	return list
}

func displayDevicesTable(out io.Writer, entries []scanner.DeviceEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, e := range entries {
		dev := e.Device
		name := dev.Name()
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(dev.AdvertisedServices(), ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := time.Since(e.LastSeen).Truncate(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, dev.Address(), dev.RSSI(), services, lastSeen)
	}

	return w.Flush()
}

// scannedDevice is the JSON shape of one scan result
type scannedDevice struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services"`
	LastSeen    time.Time `json:"last_seen"`
}

func displayDevicesJSON(out io.Writer, entries []scanner.DeviceEntry) error {
	list := make([]scannedDevice, 0, len(entries))
	for _, e := range entries {
		services := e.Device.AdvertisedServices()
		if services == nil {
			services = []string{}
		}
		list = append(list, scannedDevice{
			Name:        e.Device.Name(),
			Address:     e.Device.Address(),
			RSSI:        e.Device.RSSI(),
			Connectable: e.Device.IsConnectable(),
			Services:    services,
			LastSeen:    e.LastSeen,
		})
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
