// Package device defines the backend-neutral BLE central abstractions used by
// voltlog: discovered devices, GATT client connections, services,
// characteristics and their properties.
//
// Concrete implementations live in sub-packages:
//   - go-ble: github.com/go-ble/ble (CoreBluetooth on macOS, HCI on Linux)
//   - tinygo: tinygo.org/x/bluetooth (BlueZ, CoreBluetooth, WinRT)
//
// The package also carries the structured errors shared by every backend and
// UUID normalization helpers.
package device
