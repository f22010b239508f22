package pipeline

import (
	"fmt"
	"time"
)

// Config controls the detection pipeline.
type Config struct {
	// SmoothingFactor and Threshold are handed to the detector.
	SmoothingFactor float64 `mapstructure:"smoothing_factor"`
	Threshold       float64 `mapstructure:"threshold"`

	// HistoryCapacity bounds the in-memory rolling verdict buffer.
	HistoryCapacity int `mapstructure:"history_capacity"`

	// BatchSize is how many samples pass between baseline snapshots
	// (bus event + database checkpoint).
	BatchSize int `mapstructure:"batch_size"`

	// AnomalyRetention bounds the age of audit log records; rows older
	// than it are purged every MaintenanceInterval. Zero disables purging.
	AnomalyRetention    time.Duration `mapstructure:"anomaly_retention"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		SmoothingFactor:     0.3,
		Threshold:           3.0,
		HistoryCapacity:     200,
		BatchSize:           10,
		AnomalyRetention:    30 * 24 * time.Hour,
		MaintenanceInterval: 1 * time.Hour,
	}
}

// Validate checks pipeline bounds. Detector parameters are validated by
// the detector itself.
func (c Config) Validate() error {
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be at least 1, got %d", c.HistoryCapacity)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize)
	}
	if c.AnomalyRetention > 0 && c.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance_interval must be positive when anomaly_retention is set, got %v", c.MaintenanceInterval)
	}
	return nil
}
