package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/devicefactory"
)

// FakeBackendName is the devicefactory name the fake registers under
const FakeBackendName = "fake"

// ErrPeripheralUnreachable is returned when connecting to an address with no PeripheralSpec
var ErrPeripheralUnreachable = errors.New("peripheral unreachable")

// FakeBackend is an in-memory BLE host. Scans replay the configured
// advertisements and then block until cancelled; connections expose the
// GATT profile of the matching PeripheralSpec.
type FakeBackend struct {
	mu             sync.Mutex
	advertisements []device.Advertisement
	peripherals    map[string]*PeripheralSpec
	devices        map[string]*FakeDevice

	// ScanErr is returned from every scan when set
	ScanErr error

	scans    atomic.Int32
	released atomic.Int32
}

// NewFakeBackend creates an empty fake host
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		peripherals: make(map[string]*PeripheralSpec),
		devices:     make(map[string]*FakeDevice),
	}
}

// WithAdvertisements queues advertisements replayed by every scan
func (b *FakeBackend) WithAdvertisements(ads ...device.Advertisement) *FakeBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advertisements = append(b.advertisements, ads...)
	return b
}

// WithPeripheral makes the peripheral at spec.Address connectable
func (b *FakeBackend) WithPeripheral(spec *PeripheralSpec) *FakeBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peripherals[addrKey(spec.Address)] = spec
	return b
}

// Backend exposes the fake through the devicefactory contract
func (b *FakeBackend) Backend() *devicefactory.Backend {
	return &devicefactory.Backend{
		Name: FakeBackendName,
		NewScanningDevice: func() (device.ScanningDevice, error) {
			return &fakeScanner{backend: b}, nil
		},
		NewDevice: func(address string, logger *logrus.Logger) device.Device {
			return b.newDevice(address, nil)
		},
		NewDeviceFromAdvertisement: func(adv device.Advertisement, logger *logrus.Logger) device.Device {
			return b.newDevice(adv.Addr(), adv)
		},
		Release: func() error {
			b.released.Add(1)
			return nil
		},
	}
}

// Register installs the fake in devicefactory under FakeBackendName
func (b *FakeBackend) Register() {
	devicefactory.Register(FakeBackendName, func() (*devicefactory.Backend, error) {
		return b.Backend(), nil
	})
}

// Device returns the last device created for address, or nil
func (b *FakeBackend) Device(address string) *FakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[addrKey(address)]
}

// ScanCount returns how many scans were started
func (b *FakeBackend) ScanCount() int {
	return int(b.scans.Load())
}

// ReleaseCount returns how many times the host adapter was released
func (b *FakeBackend) ReleaseCount() int {
	return int(b.released.Load())
}

func (b *FakeBackend) newDevice(address string, adv device.Advertisement) *FakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := &FakeDevice{address: address, rssi: -50, connectable: true, spec: b.peripherals[addrKey(address)]}
	if adv != nil {
		d.Update(adv)
	}
	b.devices[addrKey(address)] = d
	return d
}

func addrKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

type fakeScanner struct {
	backend *FakeBackend
}

func (s *fakeScanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	s.backend.scans.Add(1)
	if s.backend.ScanErr != nil {
		return s.backend.ScanErr
	}

	s.backend.mu.Lock()
	ads := append([]device.Advertisement(nil), s.backend.advertisements...)
	s.backend.mu.Unlock()

	for _, adv := range ads {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// FakeDevice implements device.Device over a PeripheralSpec
type FakeDevice struct {
	mu          sync.RWMutex
	address     string
	name        string
	rssi        int
	connectable bool
	services    []string
	manufData   []byte
	spec        *PeripheralSpec
	conn        *FakeConnection

	connects    atomic.Int32
	disconnects atomic.Int32
}

func (d *FakeDevice) ID() string { return d.Address() }

func (d *FakeDevice) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

func (d *FakeDevice) Address() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address
}

func (d *FakeDevice) RSSI() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rssi
}

func (d *FakeDevice) IsConnectable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectable
}

func (d *FakeDevice) AdvertisedServices() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.services
}

func (d *FakeDevice) ManufacturerData() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.manufData
}

// Update copies advertisement fields
func (d *FakeDevice) Update(adv device.Advertisement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if adv.LocalName() != "" {
		d.name = adv.LocalName()
	}
	d.rssi = adv.RSSI()
	d.connectable = adv.Connectable()
	if len(adv.ManufacturerData()) > 0 {
		d.manufData = adv.ManufacturerData()
	}
	if len(adv.Services()) > 0 {
		d.services = device.NormalizeUUIDs(adv.Services())
	}
}

// Connect builds a FakeConnection from the peripheral spec
func (d *FakeDevice) Connect(ctx context.Context, _ *device.ConnectOptions) error {
	d.connects.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spec == nil {
		return fmt.Errorf("connect %s: %w", d.address, ErrPeripheralUnreachable)
	}
	if d.spec.ConnectErr != nil {
		return d.spec.ConnectErr
	}
	if d.conn != nil && d.conn.IsConnected() {
		return device.ErrAlreadyConnected
	}
	d.conn = newFakeConnection(d.spec)
	return nil
}

// Disconnect closes the connection if one is open
func (d *FakeDevice) Disconnect() error {
	d.disconnects.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.close()
	}
	return nil
}

func (d *FakeDevice) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn != nil && d.conn.IsConnected()
}

// GetConnection returns the live connection, or nil before Connect
func (d *FakeDevice) GetConnection() device.Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.conn == nil {
		return nil
	}
	return d.conn
}

// Connection returns the concrete fake connection, or nil before Connect
func (d *FakeDevice) Connection() *FakeConnection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn
}

// ConnectCount returns how many times Connect was called
func (d *FakeDevice) ConnectCount() int { return int(d.connects.Load()) }

// DisconnectCount returns how many times Disconnect was called
func (d *FakeDevice) DisconnectCount() int { return int(d.disconnects.Load()) }

type fakeService struct {
	uuid  string
	chars []device.Characteristic
}

func (s *fakeService) UUID() string                                { return s.uuid }
func (s *fakeService) KnownName() string                           { return device.LookupService(s.uuid) }
func (s *fakeService) GetCharacteristics() []device.Characteristic { return s.chars }

type fakeCharacteristic struct {
	uuid  string
	props device.Properties
}

func (c *fakeCharacteristic) UUID() string                     { return c.uuid }
func (c *fakeCharacteristic) KnownName() string                { return device.LookupCharacteristic(c.uuid) }
func (c *fakeCharacteristic) GetProperties() device.Properties { return c.props }

// FakeConnection implements device.Connection and lets tests inject notifications
type FakeConnection struct {
	mu           sync.Mutex
	services     []*fakeService
	handlers     map[string]device.NotificationHandler
	subscribeErr error
	ctx          context.Context
	cancel       context.CancelFunc
}

func newFakeConnection(spec *PeripheralSpec) *FakeConnection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &FakeConnection{
		handlers:     make(map[string]device.NotificationHandler),
		subscribeErr: spec.SubscribeErr,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, s := range spec.Services {
		svc := &fakeService{uuid: device.NormalizeUUID(s.UUID)}
		for _, ch := range s.Characteristics {
			svc.chars = append(svc.chars, &fakeCharacteristic{
				uuid:  device.NormalizeUUID(ch.UUID),
				props: device.ParseProperties(ch.Properties),
			})
		}
		c.services = append(c.services, svc)
	}
	return c
}

func (c *FakeConnection) Services() []device.Service {
	out := make([]device.Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s)
	}
	return out
}

func (c *FakeConnection) GetService(uuid string) (device.Service, error) {
	for _, s := range c.services {
		if s.uuid == device.NormalizeUUID(uuid) {
			return s, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (c *FakeConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	svc, err := c.GetService(service)
	if err != nil {
		return nil, err
	}
	for _, ch := range svc.GetCharacteristics() {
		if ch.UUID() == device.NormalizeUUID(uuid) {
			return ch, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
}

func (c *FakeConnection) Subscribe(service, uuid string, handler device.NotificationHandler) error {
	if !c.IsConnected() {
		return device.ErrNotConnected
	}
	char, err := c.GetCharacteristic(service, uuid)
	if err != nil {
		return err
	}
	if !device.CanNotify(char.GetProperties()) {
		return fmt.Errorf("characteristic %s does not support notifications: %w", uuid, device.ErrUnsupported)
	}
	if c.subscribeErr != nil {
		return c.subscribeErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[subscriptionKey(service, uuid)] = handler
	return nil
}

func (c *FakeConnection) ConnectionContext() context.Context {
	return c.ctx
}

// IsConnected reports whether the link is still up
func (c *FakeConnection) IsConnected() bool {
	return c.ctx.Err() == nil
}

// Subscribed reports whether a handler is registered for the characteristic
func (c *FakeConnection) Subscribed(service, uuid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[subscriptionKey(service, uuid)]
	return ok
}

// SimulateNotification delivers data to the subscribed handler synchronously
func (c *FakeConnection) SimulateNotification(service, uuid string, data []byte) error {
	if !c.IsConnected() {
		return device.ErrNotConnected
	}
	c.mu.Lock()
	h, ok := c.handlers[subscriptionKey(service, uuid)]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription for %s/%s", service, uuid)
	}
	h(data)
	return nil
}

// DropLink simulates the peripheral going away
func (c *FakeConnection) DropLink() {
	c.close()
}

func (c *FakeConnection) close() {
	c.cancel()
}

func subscriptionKey(service, uuid string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(uuid)
}
