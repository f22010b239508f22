package source

import (
	"fmt"
	"time"
)

// Config controls the synthetic sample generator.
type Config struct {
	// Interval is the pacing between emitted samples.
	Interval time.Duration `mapstructure:"interval"`

	// Baseline is the flat center of the signal.
	Baseline float64 `mapstructure:"baseline"`

	// SeasonalAmplitude and SeasonalPeriod shape the sine component:
	// amplitude * sin(2*pi*index/period). Amplitude 0 disables it.
	SeasonalAmplitude float64 `mapstructure:"seasonal_amplitude"`
	SeasonalPeriod    float64 `mapstructure:"seasonal_period"`

	// NoiseStdDev is the standard deviation of the Gaussian noise term.
	NoiseStdDev float64 `mapstructure:"noise_stddev"`

	// SpikeProbability is the per-sample chance of an injected spike drawn
	// from N(SpikeMean, SpikeStdDev) and added to the value.
	SpikeProbability float64 `mapstructure:"spike_probability"`
	SpikeMean        float64 `mapstructure:"spike_mean"`
	SpikeStdDev      float64 `mapstructure:"spike_stddev"`

	// Seed makes the stream reproducible. Zero seeds from the clock.
	Seed int64 `mapstructure:"seed"`

	// Buffer is the capacity of the output channel. The generator blocks
	// when the consumer falls this far behind.
	Buffer int `mapstructure:"buffer"`
}

// DefaultConfig mirrors the signal the service was tuned against.
func DefaultConfig() Config {
	return Config{
		Interval:          100 * time.Millisecond,
		Baseline:          50,
		SeasonalAmplitude: 10,
		SeasonalPeriod:    50,
		NoiseStdDev:       2,
		SpikeProbability:  0.05,
		SpikeMean:         30,
		SpikeStdDev:       10,
		Buffer:            64,
	}
}

// Validate checks generator parameters.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.SeasonalAmplitude != 0 && c.SeasonalPeriod <= 0 {
		return fmt.Errorf("seasonal_period must be positive when amplitude is set, got %v", c.SeasonalPeriod)
	}
	if c.NoiseStdDev < 0 {
		return fmt.Errorf("noise_stddev must be non-negative, got %v", c.NoiseStdDev)
	}
	if c.SpikeProbability < 0 || c.SpikeProbability > 1 {
		return fmt.Errorf("spike_probability must be in [0, 1], got %v", c.SpikeProbability)
	}
	if c.SpikeStdDev < 0 {
		return fmt.Errorf("spike_stddev must be non-negative, got %v", c.SpikeStdDev)
	}
	if c.Buffer < 1 {
		return fmt.Errorf("buffer must be at least 1, got %d", c.Buffer)
	}
	return nil
}
