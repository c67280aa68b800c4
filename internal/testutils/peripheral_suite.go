//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/voltlog/internal/devicefactory"
	"github.com/stretchr/testify/suite"
)

// DefaultSensorAddress is the peripheral address the suite advertises by default
const DefaultSensorAddress = "F4:7D:A4:2C:1E:EE"

// MockBLEPeripheralSuite provides a reusable test suite backed by FakeBackend.
//
// Basic usage (voltage sensor advertised at DefaultSensorAddress):
//
//	type SessionSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
// Custom peripherals are configured before calling the parent SetupTest:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.Peripherals = []*testutils.PeripheralSpec{
//	        testutils.NewVoltageSensorBuilder(addr).WithConnectError(errBoom).Build(),
//	    }
//	    s.MockBLEPeripheralSuite.SetupTest()
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	TestTimeout time.Duration

	// Advertisements and Peripherals configure the next SetupTest. When both
	// are nil the default voltage sensor is installed.
	Advertisements []*FakeAdvertisement
	Peripherals    []*PeripheralSpec

	// Fake is rebuilt by every SetupTest and registered as FakeBackendName
	Fake *FakeBackend
}

// SetupSuite initializes helpers once before all tests in the suite
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
}

// SetupTest installs a fresh fake backend
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.Advertisements == nil && s.Peripherals == nil {
		spec, adv := CreateVoltageSensor(DefaultSensorAddress)
		s.Advertisements = []*FakeAdvertisement{adv}
		s.Peripherals = []*PeripheralSpec{spec}
	}

	s.Fake = NewFakeBackend()
	for _, adv := range s.Advertisements {
		s.Fake.WithAdvertisements(adv)
	}
	for _, p := range s.Peripherals {
		s.Fake.WithPeripheral(p)
	}
	s.Fake.Register()
}

// TearDownTest clears per-test configuration
func (s *MockBLEPeripheralSuite) TearDownTest() {
	s.Advertisements = nil
	s.Peripherals = nil
}

// Backend looks the registered fake up through devicefactory, as commands do
func (s *MockBLEPeripheralSuite) Backend() *devicefactory.Backend {
	b, err := devicefactory.Lookup(FakeBackendName)
	s.Require().NoError(err)
	return b
}
