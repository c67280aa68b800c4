package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "F4:7D:A4:2C:1E:EE", cfg.Address)
	assert.Equal(t, "go-ble", cfg.Backend)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "6e400001-b5a3-f393-e0a9-e50e24dcca9e", cfg.BLE.ServiceUUID)
	assert.Equal(t, "6e400002-b5a3-f393-e0a9-e50e24dcca9e", cfg.BLE.TXUUID)
	assert.Equal(t, "6e400003-b5a3-f393-e0a9-e50e24dcca9e", cfg.BLE.RXUUID)
	assert.Equal(t, 5*time.Second, cfg.BLE.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.BLE.ConnectTimeout)
	assert.Equal(t, 1000, cfg.Acquisition.Threshold)
	assert.Equal(t, 2000, cfg.Acquisition.Cap)
	assert.Equal(t, 3, cfg.Acquisition.SampleSize)
	assert.Equal(t, time.Second, cfg.Acquisition.PollInterval)
	assert.Equal(t, 256, cfg.Acquisition.QueueSize)
	assert.Equal(t, "voltageTest.csv", cfg.Output.Path)
	assert.Equal(t, "Voltage (0-1023)", cfg.Output.Header)
	assert.True(t, cfg.Output.CRLF)

	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
address: aa:bb:cc:dd:ee:ff
log_level: debug
ble:
  connect_timeout: 3s
acquisition:
  threshold: 10
  cap: 20
  poll_interval: 250ms
output:
  crlf: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.Address)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.BLE.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.BLE.ScanTimeout, "unset fields keep defaults")
	assert.Equal(t, 10, cfg.Acquisition.Threshold)
	assert.Equal(t, 20, cfg.Acquisition.Cap)
	assert.Equal(t, 250*time.Millisecond, cfg.Acquisition.PollInterval)
	assert.False(t, cfg.Output.CRLF)
	assert.Equal(t, "Voltage (0-1023)", cfg.Output.Header)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "acquisition: [1, 2"))
	assert.ErrorContains(t, err, "parsing config file")
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "explicit.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	cfg, err = LoadOrDefault(writeConfig(t, "backend: tinygo\n"))
	require.NoError(t, err)
	assert.Equal(t, "tinygo", cfg.Backend)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty address", mutate: func(c *Config) { c.Address = " " }, wantErr: "address"},
		{name: "empty backend", mutate: func(c *Config) { c.Backend = "" }, wantErr: "backend"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "bad rx uuid", mutate: func(c *Config) { c.BLE.RXUUID = "not-a-uuid" }, wantErr: "ble.rx_uuid"},
		{name: "zero scan timeout", mutate: func(c *Config) { c.BLE.ScanTimeout = 0 }, wantErr: "scan_timeout"},
		{name: "zero connect timeout", mutate: func(c *Config) { c.BLE.ConnectTimeout = 0 }, wantErr: "connect_timeout"},
		{name: "zero sample size", mutate: func(c *Config) { c.Acquisition.SampleSize = 0 }, wantErr: "sample_size"},
		{name: "zero threshold", mutate: func(c *Config) { c.Acquisition.Threshold = 0 }, wantErr: "threshold"},
		{name: "cap below threshold", mutate: func(c *Config) { c.Acquisition.Cap = 999 }, wantErr: "acquisition.cap"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Acquisition.PollInterval = 0 }, wantErr: "poll_interval"},
		{name: "zero queue", mutate: func(c *Config) { c.Acquisition.QueueSize = 0 }, wantErr: "queue_size"},
		{name: "empty output", mutate: func(c *Config) { c.Output.Path = "" }, wantErr: "output.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logLevel logrus.Level
	}{
		{name: "creates logger with debug level", level: "debug", logLevel: logrus.DebugLevel},
		{name: "creates logger with info level", level: "info", logLevel: logrus.InfoLevel},
		{name: "creates logger with warn level", level: "WARN", logLevel: logrus.WarnLevel},
		{name: "creates logger with error level", level: "error", logLevel: logrus.ErrorLevel},
		{name: "invalid level falls back to info", level: "loud", logLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestExpandTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, "data", "v.csv"), expandTilde("~/data/v.csv"))
	assert.Equal(t, "rel/v.csv", expandTilde("rel/v.csv"))
}
