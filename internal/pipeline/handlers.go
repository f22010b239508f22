package pipeline

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/HerbHall/driftwatch/pkg/plugin"
	"github.com/HerbHall/driftwatch/pkg/stream"
	"go.uber.org/zap"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an RFC 7807 problem detail response.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://driftwatch.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

// StatusResponse is the response for the GET /stream/status endpoint.
type StatusResponse struct {
	SamplesProcessed uint64                  `json:"samples_processed"`
	InvalidSamples   uint64                  `json:"invalid_samples"`
	LastInvalid      string                  `json:"last_invalid,omitempty"`
	Anomalies        uint64                  `json:"anomalies"`
	HistoryLen       int                     `json:"history_len"`
	Baseline         stream.BaselineSnapshot `json:"baseline"`
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/stream/status", Handler: m.handleStatus},
		{Method: http.MethodGet, Path: "/stream/history", Handler: m.handleHistory},
		{Method: http.MethodGet, Path: "/stream/baseline", Handler: m.handleBaseline},
		{Method: http.MethodGet, Path: "/stream/anomalies", Handler: m.handleAnomalies},
	}
}

func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		SamplesProcessed: m.processed.Load(),
		InvalidSamples:   m.invalid.Load(),
		Anomalies:        m.anomalies.Load(),
		HistoryLen:       m.history.Len(),
		Baseline:         m.detector.Baseline(),
	}
	if err := m.LastInvalid(); err != nil {
		resp.LastInvalid = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *Module) handleHistory(w http.ResponseWriter, r *http.Request) {
	verdicts := m.history.Snapshot()

	// Optional ?limit=N returns only the newest N verdicts.
	if q := r.URL.Query().Get("limit"); q != "" {
		limit, err := strconv.Atoi(q)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(verdicts) {
			verdicts = verdicts[len(verdicts)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, verdicts)
}

func (m *Module) handleBaseline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.detector.Baseline())
}

func (m *Module) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "anomaly audit log not available (no database configured)")
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := m.store.ListAnomalies(r.Context(), limit)
	if err != nil {
		m.logger.Error("list anomalies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []stream.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
