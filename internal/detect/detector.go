// Package detect implements the streaming anomaly detector: an exponentially
// weighted moving average with online variance estimation, a Z-score decision
// rule, and a bounded rolling history of verdicts.
package detect

import (
	"fmt"
	"math"
	"time"

	"github.com/HerbHall/driftwatch/pkg/stream"
)

// Config holds the detector's fixed configuration. It is immutable once the
// detector is constructed; there is no ambient tuning state.
type Config struct {
	Alpha     float64 `mapstructure:"smoothing_factor"` // EMA smoothing factor (0 < alpha < 1)
	Threshold float64 `mapstructure:"threshold"`        // Minimum |z-score| to flag as anomalous
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("smoothing_factor must be in (0,1), got %v", c.Alpha)
	}
	if c.Threshold <= 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("threshold must be a positive finite number, got %v", c.Threshold)
	}
	return nil
}

// Detector maintains a running estimate of the signal's central tendency and
// dispersion in O(1) space, classifying each new sample against it.
//
// A Detector is owned by a single goroutine: Update must never be called
// concurrently. Given the same ordered samples and configuration, Update
// produces identical verdicts on every run.
type Detector struct {
	cfg Config

	ema       float64
	variance  float64 // Welford-style online variance using EWMA weighting
	samples   uint64
	lastIndex uint64
}

// New creates a detector with the given configuration.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("detector config: %w", err)
	}
	return &Detector{cfg: cfg}, nil
}

// Update processes one sample and returns its verdict.
//
// The sample is classified against the baseline as of before the sample:
// z = (value - ema) / stdDev with the pre-update mean and deviation, so a
// large spike cannot inflate the dispersion it is judged against. The
// EMA and variance are then advanced with the standard recurrence
//
//	ema' = ema + alpha*dev
//	var' = (1-alpha) * (var + alpha*dev^2)
//
// Samples with a non-finite value, or an index not strictly greater than the
// last accepted index, are rejected with *InvalidSampleError and leave the
// detector untouched. The first accepted sample establishes the sequence
// start at any index and seeds the baseline (z-score 0, never anomalous).
// Zero observed dispersion is an expected branch of the math, not an error:
// it yields z-score 0 and no anomaly.
func (d *Detector) Update(s stream.Sample) (stream.Verdict, error) {
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return stream.Verdict{}, &InvalidSampleError{
			Index: s.Index, Value: s.Value, Reason: "value is not finite",
		}
	}
	if d.samples > 0 && s.Index <= d.lastIndex {
		return stream.Verdict{}, &InvalidSampleError{
			Index: s.Index, Value: s.Value,
			Reason: fmt.Sprintf("index is not monotonic (last accepted %d)", d.lastIndex),
		}
	}

	if d.samples == 0 {
		d.ema = s.Value
		d.variance = 0
		d.samples = 1
		d.lastIndex = s.Index
		return stream.Verdict{Index: s.Index, Value: s.Value}, nil
	}

	deviation := s.Value - d.ema
	prevStdDev := math.Sqrt(d.variance)

	v := stream.Verdict{Index: s.Index, Value: s.Value}
	if prevStdDev > 0 {
		v.ZScore = deviation / prevStdDev
		if math.Abs(v.ZScore) > d.cfg.Threshold {
			v.IsAnomaly = true
			v.Severity = severity(v.ZScore, d.cfg.Threshold)
		}
	}

	d.variance = (1 - d.cfg.Alpha) * (d.variance + d.cfg.Alpha*deviation*deviation)
	d.ema += d.cfg.Alpha * deviation
	d.samples++
	d.lastIndex = s.Index
	return v, nil
}

// Baseline returns the detector's current running estimate.
func (d *Detector) Baseline() stream.BaselineSnapshot {
	return stream.BaselineSnapshot{
		EMA:       d.ema,
		StdDev:    math.Sqrt(d.variance),
		Samples:   d.samples,
		UpdatedAt: time.Now().UTC(),
	}
}

// Samples returns the number of samples accepted so far.
func (d *Detector) Samples() uint64 {
	return d.samples
}

// severity maps an anomalous z-score to a severity level:
//   - warning: |z| > threshold and |z| < threshold+1
//   - critical: |z| >= threshold+1
func severity(z, threshold float64) string {
	if math.Abs(z) >= threshold+1 {
		return stream.SeverityCritical
	}
	return stream.SeverityWarning
}
