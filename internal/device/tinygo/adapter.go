// Package tinygo implements the device abstractions on top of
// tinygo.org/x/bluetooth, which drives BlueZ over D-Bus on Linux,
// CoreBluetooth on macOS and WinRT on Windows.
package tinygo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/srg/voltlog/internal/device"
	"tinygo.org/x/bluetooth"
)

// Adapter wraps a bluetooth.Adapter and enables it lazily
type Adapter struct {
	adapter *bluetooth.Adapter
	probe   []bluetooth.UUID

	enableOnce sync.Once
	enableErr  error

	// scanMu serializes scans; the host stack supports one at a time
	scanMu sync.Mutex

	// links maps host addresses to live connections for disconnect events
	linksMu sync.Mutex
	links   map[string]*Connection
}

// NewAdapter wraps the host default adapter. probeServices lists the service
// UUIDs reported in advertisements, since tinygo payloads only answer
// membership queries.
func NewAdapter(probeServices ...string) (*Adapter, error) {
	a := &Adapter{
		adapter: bluetooth.DefaultAdapter,
		links:   make(map[string]*Connection),
	}
	for _, s := range probeServices {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("parse service UUID %q: %w", s, err)
		}
		a.probe = append(a.probe, u)
	}
	return a, nil
}

func (a *Adapter) enable() error {
	a.enableOnce.Do(func() {
		a.enableErr = NormalizeError(a.adapter.Enable())
		if a.enableErr == nil {
			a.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
				a.linkChanged(dev.Address.String(), connected)
			})
		}
	})
	return a.enableErr
}

func (a *Adapter) track(hostAddr string, conn *Connection) {
	a.linksMu.Lock()
	defer a.linksMu.Unlock()
	if a.links == nil {
		a.links = make(map[string]*Connection)
	}
	a.links[hostAddr] = conn
}

func (a *Adapter) untrack(hostAddr string) {
	a.linksMu.Lock()
	defer a.linksMu.Unlock()
	delete(a.links, hostAddr)
}

// linkChanged handles host connect events; a disconnect of a tracked
// peripheral cancels its connection context
func (a *Adapter) linkChanged(hostAddr string, connected bool) {
	if connected {
		return
	}
	a.linksMu.Lock()
	conn, ok := a.links[hostAddr]
	delete(a.links, hostAddr)
	a.linksMu.Unlock()

	if ok {
		conn.lost()
	}
}

// Scan implements device.ScanningDevice. It blocks until ctx is done.
func (a *Adapter) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	if err := a.enable(); err != nil {
		return err
	}
	return a.scan(ctx, func(r bluetooth.ScanResult) bool {
		handler(newAdvertisement(r, a.probe))
		return false
	})
}

// scan runs the host scan until ctx is done or visit returns true
func (a *Adapter) scan(ctx context.Context, visit func(bluetooth.ScanResult) bool) error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if visit(result) {
			_ = adapter.StopScan()
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return NormalizeError(err)
}

// resolve scans until an advertisement from address shows up
func (a *Adapter) resolve(ctx context.Context, address string) (bluetooth.Address, error) {
	if err := a.enable(); err != nil {
		return bluetooth.Address{}, err
	}

	var (
		found bluetooth.Address
		ok    bool
	)
	err := a.scan(ctx, func(r bluetooth.ScanResult) bool {
		if strings.EqualFold(r.Address.String(), address) {
			found, ok = r.Address, true
		}
		return ok
	})
	if ok {
		return found, nil
	}
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return bluetooth.Address{}, &device.NotFoundError{Resource: "device", UUIDs: []string{address}}
	}
	return bluetooth.Address{}, err
}

// tinyAdvertisement adapts bluetooth.ScanResult to device.Advertisement
type tinyAdvertisement struct {
	result bluetooth.ScanResult
	probe  []bluetooth.UUID
}

func newAdvertisement(r bluetooth.ScanResult, probe []bluetooth.UUID) device.Advertisement {
	return &tinyAdvertisement{result: r, probe: probe}
}

func (a *tinyAdvertisement) LocalName() string { return a.result.LocalName() }
func (a *tinyAdvertisement) RSSI() int         { return int(a.result.RSSI) }
func (a *tinyAdvertisement) Addr() string      { return a.result.Address.String() }

// Connectable is not exposed by every tinygo host stack
func (a *tinyAdvertisement) Connectable() bool { return true }

// ManufacturerData flattens elements back into the on-air layout (company ID, little-endian, then data)
func (a *tinyAdvertisement) ManufacturerData() []byte {
	var out []byte
	for _, el := range a.result.ManufacturerData() {
		out = binary.LittleEndian.AppendUint16(out, el.CompanyID)
		out = append(out, el.Data...)
	}
	return out
}

func (a *tinyAdvertisement) Services() []string {
	var out []string
	for _, u := range a.probe {
		if a.result.HasServiceUUID(u) {
			out = append(out, u.String())
		}
	}
	return out
}
