package testutils

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	// LogOutput captures everything Logger writes
	LogOutput *bytes.Buffer
}

// NewTestHelper creates a test helper whose debug-level logger writes into LogOutput
func NewTestHelper(t *testing.T) *TestHelper {
	out := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return &TestHelper{
		T:         t,
		Logger:    logger,
		LogOutput: out,
	}
}

// CreateMockAdvertisement starts an advertisement builder with the common fields set
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

// CreateVoltageSensor returns the default voltage sensor peripheral and its advertisement
func CreateVoltageSensor(address string) (*PeripheralSpec, *FakeAdvertisement) {
	spec := NewVoltageSensorBuilder(address).Build()
	adv := CreateMockAdvertisement("VoltSense", address, -58).Build()
	return spec, adv
}
