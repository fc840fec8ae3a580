package sim

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Config tunes one simulated hand. Durations are set by DefaultConfig; the
// tagged fields pick up their defaults via go-defaults.
type Config struct {
	// Model selects the muscle/joint layout from the model database.
	// Accepts canonical names and aliases (hand8, clone-15, ...).
	Model string `default:"hand8"`

	// Firmware is the version string reported in device info.
	Firmware string `default:"sim-1.4.2"`

	// NoiseAmplitude is the peak pressure readback noise, in normalized
	// pressure units.
	NoiseAmplitude float64 `default:"0.002"`

	// StreamBuffer is the per-stream update channel depth.
	StreamBuffer int `default:"128"`

	// TimeConstant is the first-order response time of muscle pressure
	// toward its commanded target.
	TimeConstant time.Duration

	// TelemetryInterval is the period of the telemetry pump.
	TelemetryInterval time.Duration

	// Seed fixes the noise generator for reproducible runs; 0 seeds from
	// the clock.
	Seed int64
}

// DefaultConfig returns the default simulated hand configuration.
func DefaultConfig() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	c.TimeConstant = 120 * time.Millisecond
	c.TelemetryInterval = 20 * time.Millisecond
	return c
}

// withDefaults fills zero fields of a caller-provided config.
func withDefaults(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	out := *cfg
	if out.Model == "" {
		out.Model = "hand8"
	}
	if out.Firmware == "" {
		out.Firmware = "sim-1.4.2"
	}
	if out.NoiseAmplitude == 0 {
		out.NoiseAmplitude = 0.002
	}
	if out.StreamBuffer <= 0 {
		out.StreamBuffer = 128
	}
	if out.TimeConstant <= 0 {
		out.TimeConstant = 120 * time.Millisecond
	}
	if out.TelemetryInterval <= 0 {
		out.TelemetryInterval = 20 * time.Millisecond
	}
	return &out
}
