package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/device"
	"tinygo.org/x/bluetooth"
)

type service struct {
	uuid            string
	knownName       string
	characteristics []*characteristic
}

func (s *service) UUID() string      { return s.uuid }
func (s *service) KnownName() string { return s.knownName }

func (s *service) GetCharacteristics() []device.Characteristic {
	out := make([]device.Characteristic, len(s.characteristics))
	for i, c := range s.characteristics {
		out[i] = c
	}
	return out
}

type characteristic struct {
	uuid      string
	knownName string
	props     device.Properties
	char      bluetooth.DeviceCharacteristic
}

func (c *characteristic) UUID() string      { return c.uuid }
func (c *characteristic) KnownName() string { return c.knownName }

// GetProperties is empty on host stacks that do not report the property byte
func (c *characteristic) GetProperties() device.Properties {
	if c.props == nil {
		return device.NewProperties(0)
	}
	return c.props
}

// Connection implements device.Connection over a connected bluetooth.Device
type Connection struct {
	mu       sync.RWMutex
	dev      *bluetooth.Device
	services []*service
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newConnection(logger *logrus.Logger) *Connection {
	return &Connection{logger: logger, ctx: context.Background()}
}

// attach discovers the full profile of dev and marks the connection live
func (c *Connection) attach(ctx context.Context, dev *bluetooth.Device) error {
	svcs, err := dev.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}

	services := make([]*service, 0, len(svcs))
	for i := range svcs {
		raw := svcs[i].UUID().String()
		svc := &service{uuid: device.NormalizeUUID(raw), knownName: device.LookupService(raw)}

		chars, err := svcs[i].DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("failed to discover characteristics of %s: %w", raw, NormalizeError(err))
		}
		for _, ch := range chars {
			craw := ch.UUID().String()
			svc.characteristics = append(svc.characteristics, &characteristic{
				uuid:      device.NormalizeUUID(craw),
				knownName: device.LookupCharacteristic(craw),
				props:     device.NewProperties(hostPropertyFlags(ch)),
				char:      ch,
			})
		}
		c.logger.WithFields(logrus.Fields{
			"service_uuid":    svc.uuid,
			"characteristics": len(svc.characteristics),
		}).Debug("Discovered service")
		services = append(services, svc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dev = dev
	c.services = services
	c.ctx, c.cancel = context.WithCancelCause(ctx)
	return nil
}

func (c *Connection) Services() []device.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]device.Service, len(c.services))
	for i, s := range c.services {
		out[i] = s
	}
	return out
}

func (c *Connection) GetService(uuid string) (device.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s := c.findService(uuid); s != nil {
		return s, nil
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (c *Connection) findService(uuid string) *service {
	n := device.NormalizeUUID(uuid)
	for _, s := range c.services {
		if s.uuid == n {
			return s
		}
	}
	return nil
}

func (c *Connection) lookup(serviceUUID, uuid string) (*characteristic, error) {
	svc := c.findService(serviceUUID)
	if svc == nil {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}
	n := device.NormalizeUUID(uuid)
	for _, ch := range svc.characteristics {
		if ch.uuid == n {
			return ch, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, uuid}}
}

func (c *Connection) GetCharacteristic(serviceUUID, uuid string) (device.Characteristic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookup(serviceUUID, uuid)
}

// Subscribe enables notifications; the host stack invokes handler on its own goroutine
func (c *Connection) Subscribe(serviceUUID, uuid string, handler device.NotificationHandler) error {
	c.mu.RLock()
	if c.dev == nil {
		c.mu.RUnlock()
		return device.ErrNotConnected
	}
	ch, err := c.lookup(serviceUUID, uuid)
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := ch.char.EnableNotifications(func(buf []byte) { handler(buf) }); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", uuid, NormalizeError(err))
	}
	c.logger.WithFields(logrus.Fields{
		"serviceUUID": serviceUUID,
		"charUUID":    uuid,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}

func (c *Connection) ConnectionContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dev != nil
}

// lost marks the link as dropped by the peer or the host stack. The
// connection context is cancelled with device.ErrNotConnected.
func (c *Connection) lost() {
	c.mu.Lock()
	dev, cancel := c.dev, c.cancel
	c.dev, c.cancel = nil, nil
	c.mu.Unlock()

	if dev == nil {
		return
	}
	c.logger.Warn("BLE device connection lost")
	if cancel != nil {
		cancel(device.ErrNotConnected)
	}
}

func (c *Connection) disconnect() error {
	c.mu.Lock()
	dev, cancel := c.dev, c.cancel
	c.dev, c.cancel = nil, nil
	c.mu.Unlock()

	if dev == nil {
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	if cancel != nil {
		cancel(nil)
	}
	c.logger.Info("Disconnecting BLE device...")
	if err := dev.Disconnect(); err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}
