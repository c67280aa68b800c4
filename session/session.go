// Package session runs one acquisition end to end: find the sensor, connect,
// print its GATT profile, subscribe to RX notifications, wait for the sample
// threshold and write the decoded readings to CSV.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/acquisition"
	"github.com/srg/voltlog/inspector"
	"github.com/srg/voltlog/internal/csvout"
	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/devicefactory"
	"github.com/srg/voltlog/internal/groutine"
	"github.com/srg/voltlog/internal/ringchan"
	"github.com/srg/voltlog/internal/sample"
	"github.com/srg/voltlog/pkg/config"
	"github.com/srg/voltlog/scanner"
)

var (
	// ErrConnectFailed wraps any failure to establish the GATT session
	ErrConnectFailed = errors.New("failed to connect to target device")

	// ErrConnectionLost indicates the link dropped before the threshold was reached
	ErrConnectionLost = errors.New("connection lost")
)

// ReportedError wraps a failure the session already explained on its output.
// Callers should end quietly instead of printing it again.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }
func (e *ReportedError) Unwrap() error { return e.Err }

// ProgressCallback receives short phase descriptions while the session runs
type ProgressCallback func(phase string)

// Progress phases reported outside of sample collection
const (
	PhaseScanning   = "Scanning"
	PhaseConnecting = "Connecting"
	PhaseWriting    = "Writing"
	PhaseDone       = "Done"
)

// Options configures a session
type Options struct {
	Address        string
	ServiceUUID    string
	RXUUID         string
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration

	Acquisition  acquisition.Options
	PollInterval time.Duration
	QueueSize    int

	OutputPath string
	CSV        csvout.Options

	// Inspect prints the GATT profile after connecting
	Inspect bool
	// Colored enables ANSI colors in the profile dump
	Colored bool
}

// OptionsFromConfig maps the application config onto session options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Address:        cfg.Address,
		ServiceUUID:    cfg.BLE.ServiceUUID,
		RXUUID:         cfg.BLE.RXUUID,
		ScanTimeout:    cfg.BLE.ScanTimeout,
		ConnectTimeout: cfg.BLE.ConnectTimeout,
		Acquisition: acquisition.Options{
			Threshold:  cfg.Acquisition.Threshold,
			Cap:        cfg.Acquisition.Cap,
			SampleSize: cfg.Acquisition.SampleSize,
		},
		PollInterval: cfg.Acquisition.PollInterval,
		QueueSize:    cfg.Acquisition.QueueSize,
		OutputPath:   cfg.Output.Path,
		CSV: csvout.Options{
			Header: cfg.Output.Header,
			CRLF:   cfg.Output.CRLF,
		},
		Inspect: true,
	}
}

// Result summarizes a completed session. Overwritten counts payloads the
// notification queue evicted because the acquirer fell behind; Discarded
// counts notifications that arrived after acquisition ended.
type Result struct {
	Path        string
	Samples     int
	Stats       acquisition.Stats
	Overwritten int64
	Discarded   int64
}

// Session drives one acquisition against a BLE backend
type Session struct {
	backend  *devicefactory.Backend
	opts     Options
	logger   *logrus.Logger
	out      io.Writer
	progress ProgressCallback

	newTicker func(time.Duration) (<-chan time.Time, func())
}

// New creates a session writing user-facing messages to out
func New(backend *devicefactory.Backend, opts Options, logger *logrus.Logger, out io.Writer) (*Session, error) {
	if backend == nil {
		return nil, fmt.Errorf("session requires a BLE backend")
	}
	if opts.Address == "" {
		return nil, fmt.Errorf("target address must not be empty")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = acquisition.DefaultPollInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = device.DefaultConnectTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	if out == nil {
		out = io.Discard
	}

	return &Session{
		backend:  backend,
		opts:     opts,
		logger:   logger,
		out:      out,
		progress: func(string) {},
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}, nil
}

// OnProgress registers a callback for phase changes
func (s *Session) OnProgress(cb ProgressCallback) {
	if cb != nil {
		s.progress = cb
	}
}

// Run executes the session. The connection, once established, is always
// closed before Run returns.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	defer s.progress(PhaseDone)
	defer s.release()

	dev, err := s.find(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.connect(ctx, dev); err != nil {
		return nil, err
	}
	defer func() {
		if err := dev.Disconnect(); err != nil {
			s.logger.WithError(err).Warn("Failed to disconnect from target device")
		}
	}()

	conn := dev.GetConnection()
	if conn == nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, device.ErrNotConnected)
	}

	if s.opts.Inspect {
		report, err := inspector.Inspect(dev)
		if err != nil {
			return nil, fmt.Errorf("enumerate services: %w", err)
		}
		if err := report.WriteText(s.out, s.opts.Colored); err != nil {
			return nil, err
		}
	}

	samples, acq, queue, err := s.acquire(ctx, conn)
	if err != nil {
		return nil, err
	}

	values, err := acquisition.Decode(samples)
	if err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}

	s.progress(PhaseWriting)
	fmt.Fprintln(s.out, "Writing samples to file..")
	if err := csvout.WriteFile(s.opts.OutputPath, values, s.opts.CSV); err != nil {
		return nil, err
	}

	metrics := queue.GetMetrics()
	result := &Result{
		Path:        s.opts.OutputPath,
		Samples:     len(values),
		Stats:       acq.Stats(),
		Overwritten: metrics.Overwritten,
		Discarded:   metrics.Errors,
	}
	s.logger.WithFields(logrus.Fields{
		"path":        result.Path,
		"samples":     result.Samples,
		"payloads":    result.Stats.Payloads,
		"malformed":   result.Stats.Malformed,
		"dropped":     result.Stats.Dropped,
		"overwritten": result.Overwritten,
		"discarded":   result.Discarded,
	}).Info("Samples written")
	return result, nil
}

func (s *Session) find(ctx context.Context) (device.Device, error) {
	fmt.Fprintln(s.out, "Scanning for nearby BLE devices...")
	s.progress(PhaseScanning)

	sc, err := scanner.NewScanner(s.backend, s.logger)
	if err != nil {
		return nil, err
	}
	dev, err := sc.Find(ctx, s.opts.Address, s.opts.ScanTimeout, nil)
	if errors.Is(err, device.ErrDeviceNotFound) {
		fmt.Fprintln(s.out, "Target device not found.")
		fmt.Fprintln(s.out, "Exiting.")
		return nil, &ReportedError{Err: err}
	}
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(s.out, "Found target device: %s\n", describeDevice(dev))
	return dev, nil
}

func (s *Session) connect(ctx context.Context, dev device.Device) error {
	fmt.Fprintln(s.out, "Connecting to target device...")
	s.progress(PhaseConnecting)

	err := dev.Connect(ctx, &device.ConnectOptions{ConnectTimeout: s.opts.ConnectTimeout})
	if err == nil {
		fmt.Fprintln(s.out, "Connected to target device successfully!")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.WithFields(logrus.Fields{
		"address": dev.Address(),
		"error":   err,
	}).Error("Connection failed")
	fmt.Fprintf(s.out, "Failed to connect to target device: %v\n", err)
	fmt.Fprintln(s.out, "Failed to connect to target device.")
	return &ReportedError{Err: fmt.Errorf("%w: %w", ErrConnectFailed, err)}
}

// enqueueNotification copies data into queue. The host stack may reuse the
// buffer once the handler returns.
func enqueueNotification(queue *ringchan.RingChannel[[]byte], logger *logrus.Logger, data []byte) {
	payload := make([]byte, len(data))
	copy(payload, data)

	overwritten, err := queue.ForceSend(payload)
	if err != nil {
		logger.WithField("payload", fmt.Sprintf("%q", payload)).Debug("Notification after acquisition ended, discarded")
		return
	}
	if overwritten {
		logger.WithField("overwritten", queue.GetMetrics().Overwritten).Warn("Notification queue full, oldest payload overwritten")
	}
	logger.WithField("payload", fmt.Sprintf("%q", payload)).Debug("Received notification")
}

// acquire subscribes to RX and blocks until the acquirer hands off a batch
func (s *Session) acquire(ctx context.Context, conn device.Connection) ([]sample.Sample, *acquisition.Acquirer, *ringchan.RingChannel[[]byte], error) {
	acq, err := acquisition.New(s.opts.Acquisition, s.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	threshold := acq.Options().Threshold
	acq.OnTick(func(buffered, target int) {
		s.progress(fmt.Sprintf("%d/%d samples", buffered, target))
	})

	queue := ringchan.New[[]byte](s.opts.QueueSize)
	defer queue.Close()

	err = conn.Subscribe(s.opts.ServiceUUID, s.opts.RXUUID, func(data []byte) {
		enqueueNotification(queue, s.logger, data)
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("subscribe to RX characteristic %s: %w", s.opts.RXUUID, err)
	}
	s.progress(fmt.Sprintf("0/%d samples", threshold))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopWatch := context.AfterFunc(conn.ConnectionContext(), func() {
		cancel(ErrConnectionLost)
	})
	defer stopWatch()

	ticks, stopTicker := s.newTicker(s.opts.PollInterval)
	defer stopTicker()

	res := <-groutine.GoResult(runCtx, "acquisition", func(ctx context.Context) ([]sample.Sample, error) {
		return acq.Run(ctx, queue.C(), ticks)
	})
	if res.Err != nil {
		return nil, nil, nil, res.Err
	}
	return res.Value, acq, queue, nil
}

func (s *Session) release() {
	if s.backend.Release == nil {
		return
	}
	if err := s.backend.Release(); err != nil {
		s.logger.WithError(err).Debug("Failed to release BLE host device")
	}
}

func describeDevice(dev device.DeviceInfo) string {
	if name := dev.Name(); name != "" {
		return fmt.Sprintf("%s (%s), RSSI %d dBm", name, dev.Address(), dev.RSSI())
	}
	return fmt.Sprintf("%s, RSSI %d dBm", dev.Address(), dev.RSSI())
}
