package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/voltlog/internal/device"
)

// NewProperties creates a Properties instance from ble.Property bit flags.
// go-ble exposes the raw GATT property byte, so only the known bits are carried over.
func NewProperties(p ble.Property) device.Properties {
	flags := 0
	for _, m := range []struct {
		ble  ble.Property
		flag int
	}{
		{ble.CharBroadcast, device.PropBroadcast},
		{ble.CharRead, device.PropRead},
		{ble.CharWriteNR, device.PropWriteWithoutResponse},
		{ble.CharWrite, device.PropWrite},
		{ble.CharNotify, device.PropNotify},
		{ble.CharIndicate, device.PropIndicate},
		{ble.CharSignedWrite, device.PropSignedWrite},
		{ble.CharExtended, device.PropExtended},
	} {
		if p&m.ble != 0 {
			flags |= m.flag
		}
	}
	return device.NewProperties(flags)
}
