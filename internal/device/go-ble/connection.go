package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/groutine"
)

// BLEConnection represents a live GATT client session (discovery, notifications)
type BLEConnection struct {
	client      ble.Client
	logger      *logrus.Logger
	connMutex   sync.RWMutex
	isConnected bool

	services     map[string]*BLEService
	serviceOrder []string
	subscribed   []*BLECharacteristic

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewBLEConnection(logger *logrus.Logger) *BLEConnection {
	return &BLEConnection{
		services: make(map[string]*BLEService),
		ctx:      context.Background(),
		logger:   logger,
	}
}

// GetCharacteristic retrieves a characteristic by service and characteristic UUID.
// Both UUIDs are normalized for consistent lookup (lowercase, no dashes).
// Returns a NotFoundError if the service or characteristic is not found.
func (c *BLEConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.lookupCharacteristic(service, uuid)
}

func (c *BLEConnection) lookupCharacteristic(service, uuid string) (*BLECharacteristic, error) {
	svc, ok := c.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}

	char, ok := svc.Characteristics[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return char, nil
}

// Services returns all discovered BLE services for this connection in discovery order. Thread-safe.
func (c *BLEConnection) Services() []device.Service {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	result := make([]device.Service, 0, len(c.serviceOrder))
	for _, uuid := range c.serviceOrder {
		result = append(result, c.services[uuid])
	}
	return result
}

// GetService retrieves a specific service by its UUID.
// Returns a NotFoundError if the service is not found.
func (c *BLEConnection) GetService(uuid string) (device.Service, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	svc, ok := c.services[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

// Connect dials the peripheral, discovers its full GATT profile and populates services
func (c *BLEConnection) Connect(ctx context.Context, address string, opts *device.ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}

	if c.isConnectedInternal() {
		c.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	timeout := device.DefaultConnectTimeout
	if opts != nil && opts.ConnectTimeout > 0 {
		timeout = opts.ConnectTimeout
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	if _, err := sharedDevice(); err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return fmt.Errorf("failed to create BLE device: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	c.populate(profile)

	c.client = client
	c.isConnected = true
	c.ctx, c.cancel = context.WithCancelCause(ctx)

	// Clients that expose Disconnected() close it when the link drops
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		linkCtx, cancelCause := c.ctx, c.cancel
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				c.logger.Warn("Peripheral reported disconnection, cancelling connection context")
				cancelCause(device.ErrNotConnected)
			case <-linkCtx.Done():
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	totalChars := 0
	for _, svc := range c.services {
		totalChars += len(svc.Characteristics)
	}

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(c.services),
		"characteristics": totalChars,
	}).Info("BLE device connected successfully")
	return nil
}

// populate rebuilds the service table from a discovered profile, keeping discovery order
func (c *BLEConnection) populate(profile *ble.Profile) {
	c.services = make(map[string]*BLEService, len(profile.Services))
	c.serviceOrder = c.serviceOrder[:0]

	for _, bleSvc := range profile.Services {
		svc := newService(bleSvc.UUID.String())
		c.logger.WithField("service_uuid", svc.uuid).Debug("Found service UUID")
		if _, dup := c.services[svc.uuid]; !dup {
			c.serviceOrder = append(c.serviceOrder, svc.uuid)
		}
		c.services[svc.uuid] = svc

		for _, bleChar := range bleSvc.Characteristics {
			char := NewCharacteristic(bleChar)
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svc.uuid,
				"char_uuid":    char.uuid,
			}).Debug("Found characteristic UUID")
			svc.addCharacteristic(char)
		}
	}
}

// Subscribe enables notifications on a characteristic and routes payloads to handler
func (c *BLEConnection) Subscribe(service, uuid string, handler device.NotificationHandler) error {
	c.connMutex.Lock()
	if !c.isConnectedInternal() {
		c.connMutex.Unlock()
		return device.ErrNotConnected
	}
	char, err := c.lookupCharacteristic(service, uuid)
	if err != nil {
		c.connMutex.Unlock()
		return err
	}
	if !device.CanNotify(char.properties) {
		c.connMutex.Unlock()
		return fmt.Errorf("characteristic %s does not support notifications: %w", uuid, device.ErrUnsupported)
	}
	client := c.client
	char.setHandler(handler)
	c.connMutex.Unlock()

	// Prefer notifications, fall back to indications
	indicate := char.properties.Notify() == nil
	if err := NormalizeError(client.Subscribe(char.BLEChar, indicate, char.deliver)); err != nil {
		char.setHandler(nil)
		c.logger.WithFields(logrus.Fields{
			"serviceUUID": service,
			"charUUID":    uuid,
			"error":       err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("failed to subscribe to %s: %w", uuid, err)
	}

	char.subscribed.Store(true)
	c.connMutex.Lock()
	c.subscribed = append(c.subscribed, char)
	c.connMutex.Unlock()

	c.logger.WithFields(logrus.Fields{
		"serviceUUID": service,
		"charUUID":    uuid,
		"indicate":    indicate,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}

// SimulateNotification feeds data through the same path a live notification takes
func (c *BLEConnection) SimulateNotification(service, uuid string, data []byte) error {
	c.connMutex.RLock()
	char, err := c.lookupCharacteristic(service, uuid)
	c.connMutex.RUnlock()
	if err != nil {
		return err
	}
	char.deliver(data)
	return nil
}

func (c *BLEConnection) Disconnect() error {
	c.connMutex.Lock()
	if c.client == nil || !c.isConnected {
		c.connMutex.Unlock()
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"connection_ptr": fmt.Sprintf("%p", c),
		"services":       len(c.services),
	}).Info("Disconnecting BLE device...")

	client := c.client
	cancel := c.cancel
	subscribed := c.subscribed

	c.client = nil
	c.cancel = nil
	c.subscribed = nil
	c.isConnected = false
	c.connMutex.Unlock()

	if cancel != nil {
		cancel(nil)
	}

	var unsubscribeErrors []string
	for _, char := range subscribed {
		char.setHandler(nil)
		if err := c.tryUnsubscribe(client, char); err != nil {
			unsubscribeErrors = append(unsubscribeErrors, err.Error())
		}
	}
	if len(unsubscribeErrors) > 0 {
		c.logger.WithField("errors", strings.Join(unsubscribeErrors, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
	}

	disconnectErr := client.CancelConnection()
	if disconnectErr != nil {
		c.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
	} else {
		c.logger.Info("BLE device disconnected successfully")
	}
	return NormalizeError(disconnectErr)
}

// tryUnsubscribe attempts to unsubscribe using the same mode the subscription used
func (c *BLEConnection) tryUnsubscribe(client ble.Client, char *BLECharacteristic) error {
	if char.BLEChar == nil || !char.subscribed.Swap(false) {
		return nil
	}
	indicate := char.properties.Notify() == nil
	if err := NormalizeError(client.Unsubscribe(char.BLEChar, indicate)); err != nil {
		return fmt.Errorf("%s: %v", char.uuid, err)
	}
	c.logger.WithField("charUUID", char.uuid).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// isConnectedInternal checks the connection status without acquiring locks.
// Should only be called when the caller already holds connMutex.
func (c *BLEConnection) isConnectedInternal() bool {
	return c.client != nil && c.isConnected
}

func (c *BLEConnection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnectedInternal()
}

// ConnectionContext returns the connection context that is cancelled when the connection
// experiences errors or is disconnected.
func (c *BLEConnection) ConnectionContext() context.Context {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.ctx
}
