package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	DeviceTimeout  time.Duration `yaml:"device_timeout"`
	DefaultDevice  string        `yaml:"default_device"`
	OutputFormat   string        `yaml:"output_format" default:"table"` // table, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	// Durations carry no struct tag defaults; set them here
	c.ConnectTimeout = 10 * time.Second
	c.DeviceTimeout = 30 * time.Second
	return c
}

// UnmarshalYAML merges a YAML document over the current values. Durations are
// written in Go syntax ("10s", "1m30s"); keys absent from the document keep
// their previous values, so unmarshaling over DefaultConfig yields a complete
// config from a partial file.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LogLevel       string `yaml:"log_level"`
		ConnectTimeout string `yaml:"connect_timeout"`
		DeviceTimeout  string `yaml:"device_timeout"`
		DefaultDevice  string `yaml:"default_device"`
		OutputFormat   string `yaml:"output_format"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if raw.ConnectTimeout != "" {
		d, err := time.ParseDuration(raw.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("invalid connect_timeout: %w", err)
		}
		c.ConnectTimeout = d
	}
	if raw.DeviceTimeout != "" {
		d, err := time.ParseDuration(raw.DeviceTimeout)
		if err != nil {
			return fmt.Errorf("invalid device_timeout: %w", err)
		}
		c.DeviceTimeout = d
	}
	if raw.DefaultDevice != "" {
		c.DefaultDevice = raw.DefaultDevice
	}
	if raw.OutputFormat != "" {
		c.OutputFormat = raw.OutputFormat
	}
	return nil
}

// ValidOutputFormats lists the output formats commands understand
var ValidOutputFormats = []string{"table", "json"}

// Validate checks field values against their allowed ranges
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	valid := false
	for _, format := range ValidOutputFormats {
		if c.OutputFormat == format {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid output_format %q (want one of %v)", c.OutputFormat, ValidOutputFormats)
	}
	return nil
}

// Load reads a YAML config file over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		// Unset or unknown level: stay quiet, CLI flags own verbosity
		level = logrus.PanicLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
