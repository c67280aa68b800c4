//go:build test

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/internal/testutils"
)

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// All cmd/voltlog test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite

	// Dir is a per-test working directory also used as HOME
	Dir string
}

// SetupTest isolates HOME so a developer's config file never leaks into tests
func (s *CommandTestSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()
	s.Dir = s.T().TempDir()
	s.T().Setenv("HOME", s.Dir)
}

// WriteConfig writes a YAML config file into Dir and returns its path
func (s *CommandTestSuite) WriteConfig(content string) string {
	path := filepath.Join(s.Dir, "voltlog.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

// lockedBuffer collects command output written from several goroutines
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// commandResult is what a background command execution produced
type commandResult struct {
	out string
	err error
}

// ExecuteCommand runs a fresh command tree with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.executeContext(context.Background(), args...)
}

// StartCommand runs a fresh command tree in the background
func (s *CommandTestSuite) StartCommand(args ...string) <-chan commandResult {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	done := make(chan commandResult, 1)
	go func() {
		defer cancel()
		out, err := s.executeContext(ctx, args...)
		done <- commandResult{out: out, err: err}
	}()
	return done
}

func (s *CommandTestSuite) executeContext(ctx context.Context, args ...string) (string, error) {
	buf := &lockedBuffer{}
	cmd := newRootCmd()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

// Wait returns the result of a background command or fails the test
func (s *CommandTestSuite) Wait(done <-chan commandResult) commandResult {
	select {
	case r := <-done:
		return r
	case <-time.After(s.TestTimeout):
		s.FailNow("command did not finish")
		return commandResult{}
	}
}

// WaitSubscribed blocks until something subscribed to the sensor's RX characteristic
func (s *CommandTestSuite) WaitSubscribed(address string) *testutils.FakeConnection {
	var conn *testutils.FakeConnection
	s.Require().Eventually(func() bool {
		dev := s.Fake.Device(address)
		if dev == nil {
			return false
		}
		conn = dev.Connection()
		return conn != nil && conn.Subscribed(device.NordicUARTService, device.NordicUARTRX)
	}, s.TestTimeout, 5*time.Millisecond)
	return conn
}

// NotifyHex sends values as consecutive 3-digit hex samples, three per notification
func (s *CommandTestSuite) NotifyHex(conn *testutils.FakeConnection, values []int) {
	for i := 0; i < len(values); i += 3 {
		var payload strings.Builder
		for j := i; j < i+3 && j < len(values); j++ {
			payload.WriteString(hex3(values[j]))
		}
		s.Require().NoError(conn.SimulateNotification(device.NordicUARTService, device.NordicUARTRX, []byte(payload.String())))
	}
}

func hex3(v int) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[(v>>8)&0xf], digits[(v>>4)&0xf], digits[v&0xf]})
}
