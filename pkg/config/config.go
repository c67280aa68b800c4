package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Address     string            `yaml:"address" default:"F4:7D:A4:2C:1E:EE"`
	Backend     string            `yaml:"backend" default:"go-ble"`
	LogLevel    string            `yaml:"log_level" default:"warn"`
	BLE         BLEConfig         `yaml:"ble"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Output      OutputConfig      `yaml:"output"`
}

// BLEConfig holds the GATT identifiers and link timeouts
type BLEConfig struct {
	ServiceUUID    string        `yaml:"service_uuid" default:"6e400001-b5a3-f393-e0a9-e50e24dcca9e"`
	TXUUID         string        `yaml:"tx_uuid" default:"6e400002-b5a3-f393-e0a9-e50e24dcca9e"`
	RXUUID         string        `yaml:"rx_uuid" default:"6e400003-b5a3-f393-e0a9-e50e24dcca9e"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"5s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
}

// AcquisitionConfig holds the sample buffering parameters
type AcquisitionConfig struct {
	Threshold    int           `yaml:"threshold" default:"1000"`
	Cap          int           `yaml:"cap" default:"2000"`
	SampleSize   int           `yaml:"sample_size" default:"3"`
	PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
	QueueSize    int           `yaml:"queue_size" default:"256"`
}

// OutputConfig describes the CSV artifact
type OutputConfig struct {
	Path   string `yaml:"path" default:"voltageTest.csv"`
	Header string `yaml:"header" default:"Voltage (0-1023)"`
	CRLF   bool   `yaml:"crlf" default:"true"`
}

// DefaultConfigPath returns ~/.config/voltlog/config.yaml, or "" when the
// home directory is unknown
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voltlog", "config.yaml")
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Output.Path = expandTilde(cfg.Output.Path)
	return cfg, nil
}

// LoadOrDefault loads path when given. With an empty path the default
// location is tried, and a missing default file yields DefaultConfig.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	path = DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Validate checks the config for invalid values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("address must not be empty")
	}
	if c.Backend == "" {
		return fmt.Errorf("backend must not be empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	for name, value := range map[string]string{
		"ble.service_uuid": c.BLE.ServiceUUID,
		"ble.tx_uuid":      c.BLE.TXUUID,
		"ble.rx_uuid":      c.BLE.RXUUID,
	} {
		if _, err := uuid.Parse(value); err != nil {
			return fmt.Errorf("%s %q is not a valid UUID: %w", name, value, err)
		}
	}
	if c.BLE.ScanTimeout <= 0 {
		return fmt.Errorf("ble.scan_timeout must be > 0")
	}
	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}

	a := c.Acquisition
	if a.SampleSize <= 0 {
		return fmt.Errorf("acquisition.sample_size must be > 0")
	}
	if a.Threshold <= 0 {
		return fmt.Errorf("acquisition.threshold must be > 0")
	}
	if a.Cap < a.Threshold {
		return fmt.Errorf("acquisition.cap (%d) must be >= acquisition.threshold (%d)", a.Cap, a.Threshold)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("acquisition.poll_interval must be > 0")
	}
	if a.QueueSize <= 0 {
		return fmt.Errorf("acquisition.queue_size must be > 0")
	}

	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path must not be empty")
	}
	return nil
}

// Level parses LogLevel
func (c *Config) Level() (logrus.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := c.Level()

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if err != nil {
		logger.WithError(err).Warn("Falling back to info log level")
	}
	return logger
}

// expandTilde replaces a leading ~ with the user's home directory
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
