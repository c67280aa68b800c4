package goble

import (
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/srg/voltlog/internal/device"
)

// ----------------------------
// BLECharacteristic
// ----------------------------

type BLECharacteristic struct {
	uuid       string
	knownName  string
	properties device.Properties
	BLEChar    *ble.Characteristic

	subscribed atomic.Bool
	mu         sync.RWMutex
	handler    device.NotificationHandler
}

func NewCharacteristic(c *ble.Characteristic) *BLECharacteristic {
	rawUUID := c.UUID.String()
	return &BLECharacteristic{
		uuid:       device.NormalizeUUID(rawUUID),
		knownName:  device.LookupCharacteristic(rawUUID),
		BLEChar:    c,
		properties: NewProperties(c.Property),
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) KnownName() string {
	return c.knownName
}

func (c *BLECharacteristic) GetProperties() device.Properties {
	return c.properties
}

func (c *BLECharacteristic) setHandler(h device.NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// deliver hands a notification payload to the registered handler.
// go-ble reuses its receive buffer, so the handler must copy what it keeps.
func (c *BLECharacteristic) deliver(data []byte) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(data)
	}
}
