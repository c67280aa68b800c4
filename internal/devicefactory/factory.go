// Package devicefactory selects the BLE host binding used to create scanners and devices.
package devicefactory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/device"
	goble "github.com/srg/voltlog/internal/device/go-ble"
	"github.com/srg/voltlog/internal/device/tinygo"
)

// Backend names accepted by Lookup
const (
	GoBLE  = "go-ble"
	TinyGo = "tinygo"
)

// Backend bundles the constructors of one BLE host binding
type Backend struct {
	Name string

	// NewScanningDevice opens the host adapter for scanning
	NewScanningDevice func() (device.ScanningDevice, error)

	// NewDevice creates a device known only by address
	NewDevice func(address string, logger *logrus.Logger) device.Device

	// NewDeviceFromAdvertisement creates a device from a discovered advertisement
	NewDeviceFromAdvertisement func(adv device.Advertisement, logger *logrus.Logger) device.Device

	// Release frees host resources held between scan and connect; may be nil
	Release func() error
}

var (
	mu       sync.RWMutex
	registry = map[string]func() (*Backend, error){
		GoBLE:  newGoBLE,
		TinyGo: newTinyGo,
	}
)

// Register adds or replaces a backend constructor. Tests use it to install fakes.
func Register(name string, ctor func() (*Backend, error)) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = ctor
}

// Names lists the registered backend names in sorted order
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named backend
func Lookup(name string) (*Backend, error) {
	mu.RLock()
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown BLE backend %q (must be one of %s)", name, strings.Join(Names(), ", "))
	}
	return ctor()
}

func newGoBLE() (*Backend, error) {
	return &Backend{
		Name:              GoBLE,
		NewScanningDevice: goble.NewScanner,
		NewDevice: func(address string, logger *logrus.Logger) device.Device {
			return goble.NewBLEDevice(address, logger)
		},
		NewDeviceFromAdvertisement: func(adv device.Advertisement, logger *logrus.Logger) device.Device {
			return goble.NewBLEDeviceFromAdvertisement(adv, logger)
		},
		Release: goble.ReleaseDevice,
	}, nil
}

func newTinyGo() (*Backend, error) {
	adapter, err := tinygo.NewAdapter(device.NordicUARTService)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Name: TinyGo,
		NewScanningDevice: func() (device.ScanningDevice, error) {
			return adapter, nil
		},
		NewDevice: func(address string, logger *logrus.Logger) device.Device {
			return tinygo.NewDevice(adapter, address, logger)
		},
		NewDeviceFromAdvertisement: func(adv device.Advertisement, logger *logrus.Logger) device.Device {
			return tinygo.NewDeviceFromAdvertisement(adapter, adv, logger)
		},
	}, nil
}
