package tinygo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/device"
	"tinygo.org/x/bluetooth"
)

// Device implements device.Device for tinygo/bluetooth peripherals
type Device struct {
	adapter *Adapter
	logger  *logrus.Logger

	mu                 sync.RWMutex
	address            string
	name               string
	rssi               int
	advertisedServices []string
	manufData          []byte
	hostAddr           *bluetooth.Address
	connection         *Connection
}

// NewDevice creates a device known only by address; Connect scans to resolve it
func NewDevice(adapter *Adapter, address string, logger *logrus.Logger) *Device {
	if logger == nil {
		logger = logrus.New()
	}
	return &Device{
		adapter:    adapter,
		address:    address,
		logger:     logger,
		connection: newConnection(logger),
	}
}

// NewDeviceFromAdvertisement creates a device from a scan result so Connect can dial it directly
func NewDeviceFromAdvertisement(adapter *Adapter, adv device.Advertisement, logger *logrus.Logger) *Device {
	d := NewDevice(adapter, adv.Addr(), logger)
	d.Update(adv)
	return d
}

func (d *Device) ID() string { return d.Address() }

func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

func (d *Device) Address() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address
}

func (d *Device) RSSI() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rssi
}

func (d *Device) IsConnectable() bool { return true }

func (d *Device) AdvertisedServices() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.advertisedServices
}

func (d *Device) ManufacturerData() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.manufData
}

// Update refreshes device information from a new advertisement
func (d *Device) Update(adv device.Advertisement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rssi = adv.RSSI()
	if name := adv.LocalName(); name != "" {
		d.name = name
	}
	if md := adv.ManufacturerData(); len(md) > 0 {
		d.manufData = md
	}
	if ta, ok := adv.(*tinyAdvertisement); ok {
		addr := ta.result.Address
		d.hostAddr = &addr
	}

	seen := make(map[string]struct{}, len(d.advertisedServices))
	for _, s := range d.advertisedServices {
		seen[s] = struct{}{}
	}
	for _, s := range adv.Services() {
		n := device.NormalizeUUID(s)
		if _, ok := seen[n]; !ok {
			d.advertisedServices = append(d.advertisedServices, n)
			seen[n] = struct{}{}
		}
	}
	sort.Strings(d.advertisedServices)
}

// Connect dials the peripheral and discovers all services and characteristics
func (d *Device) Connect(ctx context.Context, opts *device.ConnectOptions) error {
	timeout := device.DefaultConnectTimeout
	if opts != nil && opts.ConnectTimeout > 0 {
		timeout = opts.ConnectTimeout
	}
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connection.IsConnected() {
		return device.ErrAlreadyConnected
	}

	if d.hostAddr == nil {
		d.logger.WithField("address", d.address).Debug("Resolving host address by scanning...")
		addr, err := d.adapter.resolve(connCtx, d.address)
		if err != nil {
			return fmt.Errorf("failed to resolve device with address %q: %w", d.address, err)
		}
		d.hostAddr = &addr
	} else if err := d.adapter.enable(); err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"address": d.address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	// adapter.Connect carries its own timeout; wrap it to honour ctx as well
	ch := make(chan connectResult, 1)
	hostAddr := *d.hostAddr
	go func() {
		dev, err := d.adapter.adapter.Connect(hostAddr, bluetooth.ConnectionParams{})
		ch <- connectResult{dev, err}
	}()

	dev, err := awaitConnect(connCtx, ch, func(late bluetooth.Device) {
		d.logger.WithField("address", d.address).Debug("Dropping connection established after timeout")
		_ = late.Disconnect()
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to connect to device with address %q: %w", d.address, device.ErrTimeout)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to device with address %q: %w", d.address, NormalizeError(err))
	}

	if err := d.connection.attach(ctx, &dev); err != nil {
		_ = dev.Disconnect()
		return err
	}
	d.adapter.track(hostAddr.String(), d.connection)

	d.logger.WithFields(logrus.Fields{
		"address":  d.address,
		"services": len(d.connection.Services()),
	}).Info("BLE device connected successfully")
	return nil
}

type connectResult struct {
	dev bluetooth.Device
	err error
}

// awaitConnect waits for the dial result on ch. If ctx ends first the dial
// keeps running, and a late success is handed to release.
func awaitConnect(ctx context.Context, ch <-chan connectResult, release func(bluetooth.Device)) (bluetooth.Device, error) {
	select {
	case res := <-ch:
		return res.dev, res.err
	case <-ctx.Done():
		go func() {
			if late := <-ch; late.err == nil {
				release(late.dev)
			}
		}()
		return bluetooth.Device{}, ctx.Err()
	}
}

func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hostAddr != nil {
		d.adapter.untrack(d.hostAddr.String())
	}
	return d.connection.disconnect()
}

func (d *Device) IsConnected() bool {
	return d.connection.IsConnected()
}

func (d *Device) GetConnection() device.Connection {
	return d.connection
}
