package inspector_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/srg/voltlog/inspector"
	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sensorAddr = "F4:7D:A4:2C:1E:EE"

func newSensor(t *testing.T, builder *testutils.PeripheralBuilder) (*testutils.FakeBackend, device.Device) {
	t.Helper()
	fake := testutils.NewFakeBackend().WithPeripheral(builder.Build())
	return fake, fake.Backend().NewDevice(sensorAddr, nil)
}

func TestInspectDevice(t *testing.T) {
	fake, dev := newSensor(t, testutils.NewVoltageSensorBuilder(sensorAddr))

	var phases []string
	report, err := inspector.InspectDevice(context.Background(), dev, nil, nil,
		func(p string) { phases = append(phases, p) },
		func(d device.Device) (*inspector.Report, error) {
			assert.True(t, d.IsConnected())
			return inspector.Inspect(d)
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"Connecting", "Connected", "Processing results"}, phases)
	assert.False(t, dev.IsConnected(), "device must be disconnected after the callback")
	assert.Equal(t, 1, fake.Device(sensorAddr).DisconnectCount())
	assert.Equal(t, sensorAddr, report.Address)
	assert.Equal(t, 2, report.Services.Len())
	assert.Len(t, report.Characteristics(), 3)
}

func TestInspectDeviceConnectFailure(t *testing.T) {
	boom := errors.New("connection refused")
	fake, dev := newSensor(t, testutils.NewVoltageSensorBuilder(sensorAddr).WithConnectError(boom))

	var phases []string
	called := false
	_, err := inspector.InspectDevice(context.Background(), dev, &inspector.InspectOptions{}, nil,
		func(p string) { phases = append(phases, p) },
		func(device.Device) (struct{}, error) {
			called = true
			return struct{}{}, nil
		})

	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
	assert.Equal(t, []string{"Connecting", "Failed"}, phases)
	assert.Equal(t, 0, fake.Device(sensorAddr).DisconnectCount())
}

func TestInspectDeviceCallbackErrorStillDisconnects(t *testing.T) {
	m := &testutils.MockDevice{}
	m.On("Connect", mock.Anything, &device.ConnectOptions{ConnectTimeout: device.DefaultConnectTimeout}).Return(nil)
	m.On("Disconnect").Return(errors.New("already gone"))

	cbErr := errors.New("callback failed")
	_, err := inspector.InspectDevice(context.Background(), m, nil, nil, nil,
		func(device.Device) (int, error) { return 0, cbErr })

	assert.ErrorIs(t, err, cbErr)
	m.AssertExpectations(t)
}

func TestInspectRequiresConnection(t *testing.T) {
	_, dev := newSensor(t, testutils.NewVoltageSensorBuilder(sensorAddr))
	_, err := inspector.Inspect(dev)
	assert.ErrorIs(t, err, device.ErrNotConnected)
}

func connectedReport(t *testing.T, builder *testutils.PeripheralBuilder) *inspector.Report {
	t.Helper()
	_, dev := newSensor(t, builder)
	require.NoError(t, dev.Connect(context.Background(), nil))
	t.Cleanup(func() { _ = dev.Disconnect() })

	report, err := inspector.Inspect(dev)
	require.NoError(t, err)
	return report
}

func TestReportWriteText(t *testing.T) {
	report := connectedReport(t, testutils.NewVoltageSensorBuilder(sensorAddr).
		WithService("a0b1").
		WithCharacteristic("c2d3", ""))

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, false))

	testutils.NewTextAsserter(t).Assert(buf.String(), `-----
SERVICE: 
1800: Generic Access Profile
-----
SERVICE: 
6e400001-b5a3-f393-e0a9-e50e24dcca9e: Nordic UART Service
-----
SERVICE: 
a0b1: Unknown
-----
DESCRIPTION: Device Name
UUID: 2a00
PROPERTIES: Read
-----
DESCRIPTION: Nordic UART RX
UUID: 6e400003-b5a3-f393-e0a9-e50e24dcca9e
PROPERTIES: Notify
-----
DESCRIPTION: Nordic UART TX
UUID: 6e400002-b5a3-f393-e0a9-e50e24dcca9e
PROPERTIES: WriteWithoutResponse, Write
-----
DESCRIPTION: Unknown
UUID: c2d3
PROPERTIES: 
`)
}

func TestReportWriteTextColored(t *testing.T) {
	report := connectedReport(t, testutils.NewVoltageSensorBuilder(sensorAddr))

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, true))
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "Nordic UART Service")
}

func TestReportWriteJSON(t *testing.T) {
	report := connectedReport(t, testutils.NewVoltageSensorBuilder(sensorAddr))

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	testutils.NewJSONAsserter(t).Assert(buf.String(), `{
		"address": "F4:7D:A4:2C:1E:EE",
		"services": {
			"1800": {
				"uuid": "1800",
				"description": "Generic Access Profile",
				"characteristics": [
					{"uuid": "2a00", "description": "Device Name", "properties": ["Read"]}
				]
			},
			"6e400001-b5a3-f393-e0a9-e50e24dcca9e": {
				"uuid": "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
				"description": "Nordic UART Service",
				"characteristics": [
					{"uuid": "6e400003-b5a3-f393-e0a9-e50e24dcca9e", "description": "Nordic UART RX", "properties": ["Notify"]},
					{"uuid": "6e400002-b5a3-f393-e0a9-e50e24dcca9e", "description": "Nordic UART TX", "properties": ["WriteWithoutResponse", "Write"]}
				]
			}
		}
	}`)

	// services keep discovery order in the encoded object
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`"1800"`)), bytes.Index(buf.Bytes(), []byte(`"6e400001-`)))
}
