package ws

import (
	"time"

	"github.com/HerbHall/driftwatch/pkg/stream"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageVerdict     MessageType = "stream.verdict"
	MessageAnomaly     MessageType = "stream.anomaly"
	MessageSnapshot    MessageType = "stream.snapshot"
	MessageSourceError MessageType = "stream.source_error"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// VerdictData is the payload for stream.verdict messages.
type VerdictData struct {
	Verdict stream.Verdict `json:"verdict"`
}

// AnomalyData is the payload for stream.anomaly messages.
type AnomalyData struct {
	Record *stream.AnomalyRecord `json:"record"`
}

// SnapshotData is the payload for stream.snapshot messages.
type SnapshotData struct {
	Baseline stream.BaselineSnapshot `json:"baseline"`
}

// SourceErrorData is the payload for stream.source_error messages.
type SourceErrorData struct {
	Error string `json:"error"`
}
