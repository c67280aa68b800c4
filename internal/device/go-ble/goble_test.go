package goble

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdvertisement implements ble.Advertisement with fixed values
type stubAdvertisement struct {
	name     string
	addr     string
	rssi     int
	services []ble.UUID
	manuf    []byte
}

func (a *stubAdvertisement) LocalName() string                 { return a.name }
func (a *stubAdvertisement) ManufacturerData() []byte          { return a.manuf }
func (a *stubAdvertisement) ServiceData() []ble.ServiceData    { return nil }
func (a *stubAdvertisement) Services() []ble.UUID              { return a.services }
func (a *stubAdvertisement) OverflowService() []ble.UUID       { return nil }
func (a *stubAdvertisement) TxPowerLevel() int                 { return 127 }
func (a *stubAdvertisement) Connectable() bool                 { return true }
func (a *stubAdvertisement) SolicitedService() []ble.UUID      { return nil }
func (a *stubAdvertisement) RSSI() int                         { return a.rssi }
func (a *stubAdvertisement) Addr() ble.Addr                    { return ble.NewAddr(a.addr) }

func TestNewProperties(t *testing.T) {
	props := NewProperties(ble.CharRead | ble.CharNotify | ble.CharWriteNR)
	assert.Equal(t, []string{"Read", "WriteWithoutResponse", "Notify"}, device.PropertyNames(props))
	assert.True(t, device.CanNotify(props))
	assert.Nil(t, props.Indicate())
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target error
	}{
		{"powered off", "central manager has invalid state: have=4 want=5: is Bluetooth turned on?", device.ErrBluetoothOff},
		{"hci unavailable", "can't init hci: no devices available", device.ErrBluetoothOff},
		{"link dropped", "peripheral disconnected", device.ErrNotConnected},
		{"generic fallback", "device already connected", device.ErrAlreadyConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, NormalizeError(errors.New(tt.input)), tt.target)
		})
	}

	assert.ErrorIs(t, NormalizeError(context.Canceled), context.Canceled)
	assert.NoError(t, NormalizeError(nil))
}

func TestNewBLEDeviceFromAdvertisement(t *testing.T) {
	svc := ble.MustParse(device.NordicUARTService)
	adv := NewBLEAdvertisement(&stubAdvertisement{
		addr:     "f4:7d:a4:2c:1e:ee",
		rssi:     -61,
		services: []ble.UUID{svc, ble.UUID16(0x180f)},
		manuf:    []byte{0x59, 0x00, 'V', 'o', 'l', 't', 's'},
	})

	dev := NewBLEDeviceFromAdvertisement(adv, logrus.New())

	assert.Equal(t, "f4:7d:a4:2c:1e:ee", dev.Address())
	assert.Equal(t, -61, dev.RSSI())
	assert.Equal(t, "Volts", dev.Name())
	assert.Equal(t, []string{"180f", "6e400001b5a3f393e0a9e50e24dcca9e"}, dev.AdvertisedServices())
	assert.False(t, dev.IsConnected())

	dev.Update(NewBLEAdvertisement(&stubAdvertisement{addr: "f4:7d:a4:2c:1e:ee", name: "VSense", rssi: -40}))
	assert.Equal(t, "VSense", dev.Name())
	assert.Equal(t, -40, dev.RSSI())
}

func TestConnectionLookupsBeforeConnect(t *testing.T) {
	conn := NewBLEConnection(logrus.New())

	_, err := conn.GetService(device.NordicUARTService)
	var nf *device.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "service", nf.Resource)

	err = conn.Subscribe(device.NordicUARTService, device.NordicUARTRX, func([]byte) {})
	assert.ErrorIs(t, err, device.ErrNotConnected)

	assert.NoError(t, conn.Disconnect())
	assert.Empty(t, conn.Services())
}

func TestPopulateKeepsDiscoveryOrder(t *testing.T) {
	conn := NewBLEConnection(logrus.New())
	uart := &ble.Service{
		UUID: ble.MustParse(device.NordicUARTService),
		Characteristics: []*ble.Characteristic{
			{UUID: ble.MustParse(device.NordicUARTRX), Property: ble.CharNotify},
			{UUID: ble.MustParse(device.NordicUARTTX), Property: ble.CharWrite | ble.CharWriteNR},
		},
	}
	gap := &ble.Service{UUID: ble.UUID16(0x1800)}
	conn.populate(&ble.Profile{Services: []*ble.Service{uart, gap}})

	services := conn.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "Nordic UART Service", services[0].KnownName())
	assert.Equal(t, "1800", services[1].UUID())

	chars := services[0].GetCharacteristics()
	require.Len(t, chars, 2)
	assert.Equal(t, "Nordic UART RX", chars[0].KnownName())
	assert.Equal(t, "Nordic UART TX", chars[1].KnownName())

	var got []byte
	char, err := conn.lookupCharacteristic(device.NordicUARTService, device.NordicUARTRX)
	require.NoError(t, err)
	char.setHandler(func(b []byte) { got = append([]byte(nil), b...) })
	require.NoError(t, conn.SimulateNotification(device.NordicUARTService, device.NordicUARTRX, []byte("3e8")))
	assert.Equal(t, []byte("3e8"), got)
}
