package testutils

import (
	"github.com/srg/voltlog/internal/device"
)

// PeripheralSpec describes the GATT profile and failure modes of a fake peripheral
type PeripheralSpec struct {
	Address  string
	Services []ServiceSpec

	// ConnectErr is returned from Connect when set
	ConnectErr error
	// SubscribeErr is returned from Subscribe when set
	SubscribeErr error
}

// ServiceSpec is one fake GATT service
type ServiceSpec struct {
	UUID            string
	Characteristics []CharacteristicSpec
}

// CharacteristicSpec is one fake characteristic; Properties is a comma list such as "read,notify"
type CharacteristicSpec struct {
	UUID       string
	Properties string
}

// PeripheralBuilder provides a fluent API for PeripheralSpec
//
//	spec := testutils.NewPeripheralBuilder("F4:7D:A4:2C:1E:EE").
//	    WithService("180F").
//	    WithCharacteristic("2A19", "read,notify").
//	    Build()
type PeripheralBuilder struct {
	spec PeripheralSpec
}

// NewPeripheralBuilder starts a peripheral at address with no services
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{spec: PeripheralSpec{Address: address}}
}

// WithService appends a service; following WithCharacteristic calls add to it
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.spec.Services = append(b.spec.Services, ServiceSpec{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string) *PeripheralBuilder {
	if len(b.spec.Services) == 0 {
		panic("WithCharacteristic called before WithService")
	}
	last := &b.spec.Services[len(b.spec.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicSpec{UUID: uuid, Properties: properties})
	return b
}

// WithConnectError makes Connect fail with err
func (b *PeripheralBuilder) WithConnectError(err error) *PeripheralBuilder {
	b.spec.ConnectErr = err
	return b
}

// WithSubscribeError makes Subscribe fail with err
func (b *PeripheralBuilder) WithSubscribeError(err error) *PeripheralBuilder {
	b.spec.SubscribeErr = err
	return b
}

// Build returns the configured spec
func (b *PeripheralBuilder) Build() *PeripheralSpec {
	spec := b.spec
	return &spec
}

// NewVoltageSensorBuilder preconfigures the voltage sensor profile: GAP with
// Device Name, then the Nordic UART service with RX (notify) and TX (write).
func NewVoltageSensorBuilder(address string) *PeripheralBuilder {
	return NewPeripheralBuilder(address).
		WithService("1800").
		WithCharacteristic("2a00", "read").
		WithService(device.NordicUARTService).
		WithCharacteristic(device.NordicUARTRX, "notify").
		WithCharacteristic(device.NordicUARTTX, "write,write-without-response")
}
