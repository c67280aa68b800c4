package testutils

import (
	"context"

	"github.com/srg/voltlog/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockDevice is a testify mock of device.Device for tests that need to
// script individual calls rather than a whole peripheral
type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) ID() string {
	return m.Called().String(0)
}

func (m *MockDevice) Name() string {
	return m.Called().String(0)
}

func (m *MockDevice) Address() string {
	return m.Called().String(0)
}

func (m *MockDevice) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockDevice) IsConnectable() bool {
	return m.Called().Bool(0)
}

func (m *MockDevice) AdvertisedServices() []string {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

func (m *MockDevice) ManufacturerData() []byte {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]byte)
	}
	return nil
}

func (m *MockDevice) Connect(ctx context.Context, opts *device.ConnectOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *MockDevice) Disconnect() error {
	return m.Called().Error(0)
}

func (m *MockDevice) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockDevice) Update(adv device.Advertisement) {
	m.Called(adv)
}

func (m *MockDevice) GetConnection() device.Connection {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(device.Connection)
	}
	return nil
}
