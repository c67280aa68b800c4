package testutils

import (
	"github.com/srg/voltlog/internal/device"
)

// FakeAdvertisement is a static device.Advertisement
type FakeAdvertisement struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	connectable bool
}

func (a *FakeAdvertisement) LocalName() string        { return a.name }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.manufData }
func (a *FakeAdvertisement) Services() []string       { return a.services }
func (a *FakeAdvertisement) Connectable() bool        { return a.connectable }
func (a *FakeAdvertisement) RSSI() int                { return a.rssi }
func (a *FakeAdvertisement) Addr() string             { return a.address }

// AdvertisementBuilder builds fake BLE advertisements for testing.
//
//	adv := testutils.NewAdvertisementBuilder().
//	    WithAddress("F4:7D:A4:2C:1E:EE").
//	    WithName("VoltSense").
//	    WithServices(device.NordicUARTService).
//	    Build()
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement at -50 dBm
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{rssi: -50, connectable: true}}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
// UUIDs can be in short form (e.g., "180F") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.services = append(b.adv.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// Build returns a copy of the configured advertisement
func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	adv.services = append([]string(nil), b.adv.services...)
	return &adv
}

// BuildAdvertisement is Build typed as the device interface
func (b *AdvertisementBuilder) BuildAdvertisement() device.Advertisement {
	return b.Build()
}
