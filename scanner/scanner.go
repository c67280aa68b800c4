package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/devicefactory"
	"github.com/srg/voltlog/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type       DeviceEventType
	DeviceInfo device.DeviceInfo
	Timestamp  time.Time
}

// DeviceEntry is a discovered device with the time of its latest advertisement
type DeviceEntry struct {
	Device   device.DeviceInfo
	LastSeen time.Time
}

type tracked struct {
	dev      device.Device
	mu       sync.Mutex
	lastSeen time.Time
}

func (t *tracked) touch(now time.Time) {
	t.mu.Lock()
	t.lastSeen = now
	t.mu.Unlock()
}

func (t *tracked) entry() DeviceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return DeviceEntry{Device: t.dev, LastSeen: t.lastSeen}
}

// Scanner handles BLE device discovery
type Scanner struct {
	backend *devicefactory.Backend

	// devicesMu serializes lookup-then-insert so an address is tracked once
	devicesMu sync.Mutex
	devices   *hashmap.Map[string, *tracked]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	// per-scan filter state, set before the backend starts delivering
	allow    mapset.Set
	block    mapset.Set
	services mapset.Set
	target   string
	stop     context.CancelFunc
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        5 * time.Second,
		DuplicateFilter: true,
	}
}

// initialDeviceCapacity presizes the device map for a typical scan
const initialDeviceCapacity = 64

// NewScanner creates a new BLE scanner on top of a host backend
func NewScanner(backend *devicefactory.Backend, logger *logrus.Logger) (*Scanner, error) {
	if backend == nil {
		return nil, fmt.Errorf("scanner requires a BLE backend")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		backend: backend,
		devices: hashmap.NewSized[string, *tracked](initialDeviceCapacity),
		events:  ringchan.New[DeviceEvent](100),
		logger:  logger,
	}, nil
}

// Scan performs BLE discovery with provided options and returns every
// device that passed the filters, keyed by lower-cased address.
// A zero Duration scans until ctx is done.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]DeviceEntry, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.devices = hashmap.NewSized[string, *tracked](initialDeviceCapacity)
	s.allow = toSet(opts.AllowList, normalizeAddress)
	s.block = toSet(opts.BlockList, normalizeAddress)
	s.services = toSet(opts.ServiceUUIDs, device.NormalizeUUID)

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Duration > 0 {
		var timeoutCancel context.CancelFunc
		scanCtx, timeoutCancel = context.WithTimeout(scanCtx, opts.Duration)
		defer timeoutCancel()
	}
	s.stop = cancel

	s.logger.WithFields(logrus.Fields{
		"duration": opts.Duration,
		"backend":  s.backend.Name,
	}).Info("Starting BLE scan...")

	progressCallback("Scanning")

	scanDevice, err := s.backend.NewScanningDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	err = scanDevice.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	progressCallback("Processing results")

	devices := make(map[string]DeviceEntry, s.devices.Len())
	s.devices.Range(func(key string, value *tracked) bool {
		devices[key] = value.entry()
		return true
	})
	return devices, nil
}

// Find scans for a single address and returns the device as soon as it is
// seen. When the scan ends without a sighting the error matches
// device.ErrDeviceNotFound. Cancelling ctx returns ctx's error.
func (s *Scanner) Find(ctx context.Context, address string, timeout time.Duration, progressCallback ProgressCallback) (device.Device, error) {
	target := normalizeAddress(address)
	if target == "" {
		return nil, fmt.Errorf("device address must not be empty")
	}

	s.target = target
	defer func() { s.target = "" }()

	_, err := s.Scan(ctx, &ScanOptions{
		Duration:        timeout,
		DuplicateFilter: true,
		AllowList:       []string{address},
	}, progressCallback)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.devices.Get(target)
	if !ok {
		return nil, &device.NotFoundError{Resource: "device", UUIDs: []string{address}}
	}
	return t.dev, nil
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	deviceID := normalizeAddress(adv.Addr())
	now := time.Now()

	t, existing, ok := s.track(deviceID, adv)
	if !ok {
		return
	}

	event := DeviceEvent{
		DeviceInfo: t.dev,
		Timestamp:  now,
	}

	if existing {
		t.dev.Update(adv)
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  t.dev.Name(),
			"address": t.dev.Address(),
			"rssi":    t.dev.RSSI(),
		}).Info("Discovered new device")
		event.Type = EventNew
	}
	t.touch(now)

	s.events.ForceSend(event)

	if s.target != "" && deviceID == s.target && s.stop != nil {
		s.stop()
	}
}

// track returns the entry for deviceID, creating it when the device passes
// the filters. Inserts go through Map.Insert: GetOrInsert in hashmap v1.0.8
// indexes a node that is not linked into the list, which loses keys in
// shared buckets.
func (s *Scanner) track(deviceID string, adv device.Advertisement) (t *tracked, existing, ok bool) {
	s.devicesMu.Lock()
	defer s.devicesMu.Unlock()

	if t, found := s.devices.Get(deviceID); found {
		return t, true, true
	}
	if !s.shouldIncludeDevice(deviceID, adv) {
		return nil, false, false
	}

	t = &tracked{dev: s.backend.NewDeviceFromAdvertisement(adv, s.logger)}
	s.devices.Insert(deviceID, t)
	return t, false, true
}

// shouldIncludeDevice applies to allow/block/service filters
func (s *Scanner) shouldIncludeDevice(addr string, adv device.Advertisement) bool {
	if s.block.Contains(addr) {
		return false
	}
	if s.allow.Cardinality() > 0 && !s.allow.Contains(addr) {
		return false
	}
	if s.services.Cardinality() > 0 {
		for _, svc := range adv.Services() {
			if s.services.Contains(device.NormalizeUUID(svc)) {
				return true
			}
		}
		return false
	}
	return true
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func toSet(values []string, normalize func(string) string) mapset.Set {
	set := mapset.NewSet()
	for _, v := range values {
		if n := normalize(v); n != "" {
			set.Add(n)
		}
	}
	return set
}
