package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/voltlog/internal/device"
	"github.com/srg/voltlog/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"acquire", "scan", "inspect"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	for _, flag := range []string{"config", "log-level", "backend"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
	for _, flag := range []string{"output", "threshold", "cap", "poll-interval", "scan-timeout", "connect-timeout"} {
		assert.NotNil(t, root.Flags().Lookup(flag), flag)
	}
}

func TestRootRejectsExtraArgs(t *testing.T) {
	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"AA:BB:CC:DD:EE:FF", "extra"})

	assert.Error(t, root.Execute())
}

func TestScanRejectsUnknownFormat(t *testing.T) {
	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"scan", "--format", "xml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format 'xml'")
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOut  string
	}{
		{name: "success", err: nil, wantCode: 0},
		{name: "interrupted", err: fmt.Errorf("acquire: %w", context.Canceled), wantCode: 0},
		{
			name:     "target not found was already reported",
			err:      &session.ReportedError{Err: &device.NotFoundError{Resource: "device", UUIDs: []string{"F4:7D:A4:2C:1E:EE"}}},
			wantCode: 0,
		},
		{
			name:     "connect failure was already reported",
			err:      &session.ReportedError{Err: fmt.Errorf("%w: %w", session.ErrConnectFailed, errors.New("refused"))},
			wantCode: 0,
		},
		{
			name:     "not found outside a session",
			err:      &device.NotFoundError{Resource: "device", UUIDs: []string{"F4:7D:A4:2C:1E:EE"}},
			wantCode: 1,
			wantOut:  "ERROR: device F4:7D:A4:2C:1E:EE not found; make sure it is powered on and advertising\n",
		},
		{
			name:     "connection lost",
			err:      session.ErrConnectionLost,
			wantCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			assert.Equal(t, tt.wantCode, reportError(buf, tt.err))
			if tt.wantCode == 0 {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), "ERROR: ")
			}
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, buf.String())
			}
		})
	}
}
