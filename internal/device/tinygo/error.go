package tinygo

import (
	"fmt"

	"github.com/srg/voltlog/internal/device"
)

// NormalizeError maps tinygo/bluetooth host errors to structured device errors
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.NotReady"),
		device.ContainsIgnoreCase(msg, "powered off"),
		device.ContainsIgnoreCase(msg, "no bluetooth adapter"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.NotConnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case device.ContainsIgnoreCase(msg, "org.bluez.Error.AlreadyConnected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	default:
		return device.NormalizeError(err)
	}
}
