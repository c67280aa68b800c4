//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/voltlog/internal/device"
)

func newHostDevice() (ble.Device, error) {
	return nil, fmt.Errorf("go-ble backend on %s: %w (use the tinygo backend)", runtime.GOOS, device.ErrUnsupported)
}
