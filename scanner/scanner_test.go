package scanner_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/testutils"
	"github.com/srg/voltlog/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	suitelib "github.com/stretchr/testify/suite"
)

const sensorAddr = "F4:7D:A4:2C:1E:EE"

type ScannerTestSuite struct {
	suitelib.Suite

	helper *testutils.TestHelper
	fake   *testutils.FakeBackend
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())

	suite.fake = testutils.NewFakeBackend().WithAdvertisements(
		testutils.CreateMockAdvertisement("VoltSense", sensorAddr, -45).
			WithServices(device.NordicUARTService).
			Build(),
		testutils.CreateMockAdvertisement("Test Device 2", "11:22:33:44:55:66", -67).
			WithServices("1801").
			Build(),
		testutils.CreateMockAdvertisement("Test Device 3", "99:88:77:66:55:44", -80).
			WithServices("180F").
			Build(),
		// second advertisement from the sensor updates RSSI
		testutils.CreateMockAdvertisement("VoltSense", sensorAddr, -40).Build(),
	)
}

func (suite *ScannerTestSuite) newScanner() *scanner.Scanner {
	s, err := scanner.NewScanner(suite.fake.Backend(), suite.helper.Logger)
	suite.Require().NoError(err)
	return s
}

func (suite *ScannerTestSuite) scan(opts *scanner.ScanOptions) map[string]scanner.DeviceEntry {
	devices, err := suite.newScanner().Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)
	return devices
}

func sortedKeys(devices map[string]scanner.DeviceEntry) []string {
	keys := make([]string, 0, len(devices))
	for k := range devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (suite *ScannerTestSuite) TestNewScanner() {
	suite.Run("requires backend", func() {
		_, err := scanner.NewScanner(nil, nil)
		suite.Error(err)
	})

	suite.Run("creates scanner with nil logger", func() {
		s, err := scanner.NewScanner(suite.fake.Backend(), nil)
		suite.NoError(err)
		suite.NotNil(s)
	})
}

func (suite *ScannerTestSuite) TestDefaultScanOptions() {
	opts := scanner.DefaultScanOptions()

	suite.Equal(5*time.Second, opts.Duration)
	suite.True(opts.DuplicateFilter)
	suite.Nil(opts.ServiceUUIDs)
	suite.Nil(opts.AllowList)
	suite.Nil(opts.BlockList)
}

func (suite *ScannerTestSuite) TestScanFilters() {
	tests := []struct {
		name     string
		opts     *scanner.ScanOptions
		expected []string
	}{
		{
			name:     "no filters",
			opts:     &scanner.ScanOptions{Duration: 20 * time.Millisecond},
			expected: []string{"11:22:33:44:55:66", "99:88:77:66:55:44", "f4:7d:a4:2c:1e:ee"},
		},
		{
			name:     "allow list is case-insensitive",
			opts:     &scanner.ScanOptions{Duration: 20 * time.Millisecond, AllowList: []string{sensorAddr}},
			expected: []string{"f4:7d:a4:2c:1e:ee"},
		},
		{
			name:     "block list",
			opts:     &scanner.ScanOptions{Duration: 20 * time.Millisecond, BlockList: []string{"11:22:33:44:55:66"}},
			expected: []string{"99:88:77:66:55:44", "f4:7d:a4:2c:1e:ee"},
		},
		{
			name:     "service filter matches short and long forms",
			opts:     &scanner.ScanOptions{Duration: 20 * time.Millisecond, ServiceUUIDs: []string{"0000180f-0000-1000-8000-00805f9b34fb", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"}},
			expected: []string{"99:88:77:66:55:44", "f4:7d:a4:2c:1e:ee"},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.Equal(tt.expected, sortedKeys(suite.scan(tt.opts)))
		})
	}
}

func (suite *ScannerTestSuite) TestScanUpdatesExistingDevice() {
	devices := suite.scan(&scanner.ScanOptions{Duration: 20 * time.Millisecond})

	entry, ok := devices["f4:7d:a4:2c:1e:ee"]
	suite.Require().True(ok)
	suite.Equal(-40, entry.Device.RSSI())
	suite.Equal("VoltSense", entry.Device.Name())
	suite.False(entry.LastSeen.IsZero())
}

func (suite *ScannerTestSuite) TestScanEmitsEvents() {
	s := suite.newScanner()
	_, err := s.Scan(context.Background(), &scanner.ScanOptions{Duration: 20 * time.Millisecond}, nil)
	suite.Require().NoError(err)

	var types []scanner.DeviceEventType
	for len(types) < 4 {
		select {
		case ev := <-s.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			suite.FailNow("missing scan events")
		}
	}
	suite.Equal([]scanner.DeviceEventType{scanner.EventNew, scanner.EventNew, scanner.EventNew, scanner.EventUpdated}, types)
}

func (suite *ScannerTestSuite) TestScanReportsProgress() {
	var phases []string
	_, err := suite.newScanner().Scan(context.Background(), &scanner.ScanOptions{Duration: 10 * time.Millisecond}, func(p string) {
		phases = append(phases, p)
	})
	suite.Require().NoError(err)
	suite.Equal([]string{"Scanning", "Processing results"}, phases)
}

func (suite *ScannerTestSuite) TestScanBackendError() {
	suite.fake.ScanErr = device.ErrBluetoothOff
	_, err := suite.newScanner().Scan(context.Background(), nil, nil)
	suite.ErrorIs(err, device.ErrBluetoothOff)
	suite.Contains(err.Error(), "scan failed")
}

func (suite *ScannerTestSuite) TestFindStopsEarly() {
	start := time.Now()
	dev, err := suite.newScanner().Find(context.Background(), "f4:7d:a4:2c:1e:ee", 10*time.Second, nil)
	suite.Require().NoError(err)

	suite.Less(time.Since(start), 5*time.Second)
	suite.Equal(sensorAddr, dev.Address())
	suite.Equal(1, suite.fake.ScanCount())
}

func (suite *ScannerTestSuite) TestFindNotFound() {
	_, err := suite.newScanner().Find(context.Background(), "AA:BB:CC:00:11:22", 20*time.Millisecond, nil)
	suite.ErrorIs(err, device.ErrDeviceNotFound)
	suite.Contains(err.Error(), "AA:BB:CC:00:11:22")
	suite.Equal(1, suite.fake.ScanCount(), "no retry")
}

func (suite *ScannerTestSuite) TestFindCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := suite.newScanner().Find(ctx, "AA:BB:CC:00:11:22", time.Second, nil)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *ScannerTestSuite) TestFindEmptyAddress() {
	_, err := suite.newScanner().Find(context.Background(), "  ", time.Second, nil)
	suite.Error(err)
	suite.Equal(0, suite.fake.ScanCount())
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}

func TestScanTracksRepeatedAddresses(t *testing.T) {
	const count = 12

	var first, second []device.Advertisement
	for i := range count {
		addr := fmt.Sprintf("AA:BB:CC:DD:EE:%02X", i)
		first = append(first, testutils.CreateMockAdvertisement("Node", addr, -90).Build())
		second = append(second, testutils.CreateMockAdvertisement("Node", addr, -30-i).Build())
	}
	fake := testutils.NewFakeBackend().WithAdvertisements(append(first, second...)...)

	s, err := scanner.NewScanner(fake.Backend(), nil)
	require.NoError(t, err)

	devices, err := s.Scan(context.Background(), &scanner.ScanOptions{Duration: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.Len(t, devices, count)

	for i := range count {
		entry, ok := devices[fmt.Sprintf("aa:bb:cc:dd:ee:%02x", i)]
		require.True(t, ok, "device %d", i)
		assert.Equal(t, -30-i, entry.Device.RSSI(), "device %d", i)
	}

	counts := map[scanner.DeviceEventType]int{}
	for range 2 * count {
		select {
		case ev := <-s.Events():
			counts[ev.Type]++
		case <-time.After(time.Second):
			require.FailNow(t, "missing scan events")
		}
	}
	assert.Equal(t, count, counts[scanner.EventNew])
	assert.Equal(t, count, counts[scanner.EventUpdated])
}

func TestFindIgnoresOtherDevices(t *testing.T) {
	fake := testutils.NewFakeBackend().WithAdvertisements(
		testutils.CreateMockAdvertisement("Other", "11:22:33:44:55:66", -30).Build(),
	)
	s, err := scanner.NewScanner(fake.Backend(), nil)
	require.NoError(t, err)

	_, err = s.Find(context.Background(), sensorAddr, 20*time.Millisecond, nil)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
}
