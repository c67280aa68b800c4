package goble

import (
	"sync"

	"github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newHostDevice

var (
	hostMu     sync.Mutex
	hostDevice ble.Device
)

// sharedDevice opens the host controller once and installs it as the go-ble default.
// Scanning and dialing must share it: an HCI socket cannot be opened twice.
func sharedDevice() (ble.Device, error) {
	hostMu.Lock()
	defer hostMu.Unlock()

	if hostDevice != nil {
		return hostDevice, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)
	hostDevice = dev
	return dev, nil
}

// ReleaseDevice stops the shared host device, if one was opened
func ReleaseDevice() error {
	hostMu.Lock()
	defer hostMu.Unlock()

	if hostDevice == nil {
		return nil
	}
	err := hostDevice.Stop()
	hostDevice = nil
	return err
}
