package tinygo

import "tinygo.org/x/bluetooth"

// hostPropertyFlags reads the property byte WinRT reports during discovery
func hostPropertyFlags(c bluetooth.DeviceCharacteristic) int {
	return int(c.Properties())
}
