//go:build !windows

package tinygo

import "tinygo.org/x/bluetooth"

// hostPropertyFlags is 0 where tinygo does not expose the property byte (BlueZ, CoreBluetooth)
func hostPropertyFlags(bluetooth.DeviceCharacteristic) int {
	return 0
}
