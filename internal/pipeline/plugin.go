// Package pipeline orchestrates the stream: it pulls samples from the
// source, classifies them, maintains the rolling history, publishes events,
// and records anomalies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HerbHall/driftwatch/internal/detect"
	"github.com/HerbHall/driftwatch/pkg/plugin"
	"github.com/HerbHall/driftwatch/pkg/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Source is the stream feeding the pipeline. The channel closes when the
// source ends; Close stops emission and is safe to call more than once.
type Source interface {
	Samples() <-chan stream.Sample
	Close()
}

// Module implements the detection pipeline plugin. A single goroutine owns
// all detector and history writes: samples are processed strictly in arrival
// order and each one completes the full chain before the next begins.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *PipelineStore
	bus    plugin.EventBus
	src    Source

	detector *detect.Detector
	history  *detect.History

	processed atomic.Uint64
	invalid   atomic.Uint64
	anomalies atomic.Uint64

	mu          sync.Mutex
	lastInvalid error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the pipeline plugin. The source is wired separately via
// SetSource before Start.
func New() *Module {
	return &Module{}
}

// SetSource wires the sample stream. Must be called before Start.
func (m *Module) SetSource(src Source) {
	m.src = src
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "pipeline",
		Version:      "0.1.0",
		Description:  "Streaming anomaly detection pipeline",
		Dependencies: []string{"source"},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal pipeline config: %w", err)
		}
	}

	det, err := detect.New(detect.Config{
		Alpha:     m.cfg.SmoothingFactor,
		Threshold: m.cfg.Threshold,
	})
	if err != nil {
		return fmt.Errorf("build detector: %w", err)
	}
	m.detector = det
	m.history = detect.NewHistory(m.cfg.HistoryCapacity)

	if deps.Store != nil {
		if err := deps.Store.Migrate(context.Background(), "pipeline", migrations()); err != nil {
			return fmt.Errorf("pipeline migrations: %w", err)
		}
		m.store = NewPipelineStore(deps.Store.DB())
	}

	m.logger.Info("pipeline module initialized",
		zap.Float64("smoothing_factor", m.cfg.SmoothingFactor),
		zap.Float64("threshold", m.cfg.Threshold),
		zap.Int("history_capacity", m.cfg.HistoryCapacity),
		zap.Int("batch_size", m.cfg.BatchSize),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	if m.src == nil {
		return errors.New("pipeline: no stream source wired")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.run()
	if m.store != nil && m.cfg.AnomalyRetention > 0 {
		m.startMaintenance()
	}
	m.logger.Info("pipeline module started")
	return nil
}

// startMaintenance launches the periodic audit log purge.
func (m *Module) startMaintenance() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.runMaintenance()
			}
		}
	}()
}

// runMaintenance executes one maintenance cycle: it deletes audit log
// records older than the retention window.
func (m *Module) runMaintenance() {
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-m.cfg.AnomalyRetention)
	deleted, err := m.store.DeleteOldAnomalies(ctx, cutoff)
	if err != nil {
		m.logger.Warn("failed to delete old anomalies", zap.Error(err))
	} else if deleted > 0 {
		m.logger.Info("purged old anomalies", zap.Int64("count", deleted))
	}
}

// Stop closes the source and drains every sample already emitted through
// the full chain before returning. No verdict is lost on shutdown. The
// module context only governs the maintenance loop, so cancelling it
// before the wait cannot cut the drain short.
func (m *Module) Stop(_ context.Context) error {
	if m.src != nil {
		m.src.Close()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("pipeline module stopped",
		zap.Uint64("samples_processed", m.processed.Load()),
		zap.Uint64("invalid_samples", m.invalid.Load()),
		zap.Uint64("anomalies", m.anomalies.Load()),
	)
	return nil
}

// History returns a copy of the rolling verdict buffer, oldest first.
func (m *Module) History() []stream.Verdict {
	return m.history.Snapshot()
}

// Baseline returns the detector's current running estimate.
func (m *Module) Baseline() stream.BaselineSnapshot {
	return m.detector.Baseline()
}

// LastInvalid reports the most recent sample rejection, if any.
func (m *Module) LastInvalid() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastInvalid
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"samples_processed": strconv.FormatUint(m.processed.Load(), 10),
			"invalid_samples":   strconv.FormatUint(m.invalid.Load(), 10),
			"anomalies":         strconv.FormatUint(m.anomalies.Load(), 10),
			"history_len":       strconv.Itoa(m.history.Len()),
		},
	}
}

func (m *Module) run() {
	defer m.wg.Done()

	// Range ends when the source closes the channel, after every emitted
	// sample has been consumed. That is the drain guarantee.
	for s := range m.src.Samples() {
		m.process(s)
	}

	m.checkpoint()
	m.logger.Info("sample stream ended",
		zap.Uint64("samples_processed", m.processed.Load()))
}

func (m *Module) process(s stream.Sample) {
	expected := m.detector.Baseline().EMA

	verdict, err := m.detector.Update(s)
	if err != nil {
		m.invalid.Add(1)
		invalidSamplesTotal.Inc()
		m.mu.Lock()
		m.lastInvalid = err
		m.mu.Unlock()

		var invErr *detect.InvalidSampleError
		if errors.As(err, &invErr) {
			m.logger.Warn("skipping invalid sample",
				zap.Uint64("index", invErr.Index),
				zap.Float64("value", invErr.Value),
				zap.String("reason", invErr.Reason),
			)
			return
		}
		m.logger.Warn("skipping sample", zap.Error(err))
		return
	}

	m.history.Append(verdict)
	count := m.processed.Add(1)

	b := m.detector.Baseline()
	samplesProcessedTotal.Inc()
	baselineEMA.Set(b.EMA)
	baselineStdDev.Set(b.StdDev)
	lastZScore.Set(verdict.ZScore)

	if m.bus != nil {
		// Bus deliveries are asynchronous and may still be in flight
		// after Stop; hand them a context that is never torn down.
		m.bus.PublishAsync(context.Background(), plugin.Event{
			Topic:   stream.TopicVerdict,
			Source:  "pipeline",
			Payload: verdict,
		})
	}

	if verdict.IsAnomaly {
		m.recordAnomaly(verdict, expected)
	}

	if count%uint64(m.cfg.BatchSize) == 0 {
		m.checkpoint()
	}
}

// recordAnomaly appends to the audit log and notifies the bus.
func (m *Module) recordAnomaly(v stream.Verdict, expected float64) {
	m.anomalies.Add(1)
	anomaliesTotal.WithLabelValues(v.Severity).Inc()

	rec := &stream.AnomalyRecord{
		ID:         uuid.NewString(),
		Index:      v.Index,
		Value:      v.Value,
		Expected:   expected,
		ZScore:     v.ZScore,
		Severity:   v.Severity,
		DetectedAt: time.Now().UTC(),
	}

	m.logger.Info("anomaly detected",
		zap.Uint64("index", v.Index),
		zap.Float64("value", v.Value),
		zap.Float64("z_score", v.ZScore),
		zap.String("severity", v.Severity),
	)

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.InsertAnomaly(ctx, rec); err != nil {
			m.logger.Warn("failed to store anomaly", zap.Error(err))
		}
	}

	if m.bus != nil {
		m.bus.PublishAsync(context.Background(), plugin.Event{
			Topic:   stream.TopicAnomaly,
			Source:  "pipeline",
			Payload: rec,
		})
	}
}

// checkpoint publishes the baseline snapshot and persists it.
func (m *Module) checkpoint() {
	b := m.detector.Baseline()

	if m.bus != nil {
		m.bus.PublishAsync(context.Background(), plugin.Event{
			Topic:   stream.TopicSnapshot,
			Source:  "pipeline",
			Payload: b,
		})
	}

	if m.store != nil {
		// Not parented on the module context: the final checkpoint runs
		// during Stop, after that context is cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.UpsertBaseline(ctx, b); err != nil {
			m.logger.Warn("failed to checkpoint baseline", zap.Error(err))
		}
	}
}
