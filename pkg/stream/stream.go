// Package stream provides public SDK types for the Driftwatch streaming
// anomaly detection system.
package stream

import "time"

// Severity levels for detected anomalies.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event topics published by the pipeline.
const (
	TopicVerdict      = "stream.verdict"       // Payload: Verdict
	TopicSnapshot     = "stream.snapshot"      // Payload: BaselineSnapshot
	TopicAnomaly      = "stream.anomaly"       // Payload: *AnomalyRecord
	TopicSourceFailed = "stream.source.failed" // Payload: error string
)

// Sample is a single scalar measurement from a stream source. Index is the
// monotonic arrival sequence number. Samples are immutable once created.
type Sample struct {
	Index uint64  `json:"index"`
	Value float64 `json:"value"`
}

// Verdict is the classification of one sample against the running baseline.
// Produced once per accepted sample and never mutated afterwards. Severity is
// empty unless IsAnomaly is true.
type Verdict struct {
	Index     uint64  `json:"index"`
	Value     float64 `json:"value"`
	ZScore    float64 `json:"z_score"`
	IsAnomaly bool    `json:"is_anomaly"`
	Severity  string  `json:"severity,omitempty"`
}

// AnomalyRecord is a persisted anomaly, kept as an audit log for the
// alerting surface. The rolling history buffer itself is never persisted.
type AnomalyRecord struct {
	ID         string    `json:"id"`
	Index      uint64    `json:"index"`
	Value      float64   `json:"value"`
	Expected   float64   `json:"expected"` // Baseline EMA before the sample
	ZScore     float64   `json:"z_score"`
	Severity   string    `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

// BaselineSnapshot describes the detector's current running estimate.
type BaselineSnapshot struct {
	EMA       float64   `json:"ema"`
	StdDev    float64   `json:"std_dev"`
	Samples   uint64    `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}
