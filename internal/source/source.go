// Package source emits the synthetic sample stream the pipeline consumes.
package source

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/HerbHall/driftwatch/pkg/plugin"
	"github.com/HerbHall/driftwatch/pkg/stream"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Module implements the stream source plugin. It owns the output channel:
// samples are written until a fatal generation error or Close, then the
// channel is closed so consumers can drain and exit.
type Module struct {
	logger *zap.Logger
	cfg    Config
	bus    plugin.EventBus
	gen    *Generator

	out  chan stream.Sample
	done chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	emitted atomic.Uint64

	mu      sync.Mutex
	failure error
}

// New creates the source plugin.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "source",
		Version:     "0.1.0",
		Description: "Synthetic paced sample stream",
		Roles:       []string{"stream_source"},
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal source config: %w", err)
		}
	}

	m.gen = NewGenerator(m.cfg)
	m.out = make(chan stream.Sample, m.cfg.Buffer)
	m.done = make(chan struct{})

	m.logger.Info("source module initialized",
		zap.Duration("interval", m.cfg.Interval),
		zap.Float64("baseline", m.cfg.Baseline),
		zap.Float64("spike_probability", m.cfg.SpikeProbability),
		zap.Int("buffer", m.cfg.Buffer),
		zap.Int64("seed", m.cfg.Seed),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.wg.Add(1)
	go m.run()
	m.logger.Info("source module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.Close()
	m.logger.Info("source module stopped")
	return nil
}

// Samples returns the output channel. It is closed when the stream ends.
func (m *Module) Samples() <-chan stream.Sample {
	return m.out
}

// Close stops emission after the in-flight sample and closes the output
// channel. Safe to call more than once and from any goroutine.
func (m *Module) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// Err reports the fatal generation error that ended the stream, if any.
func (m *Module) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	status := "healthy"
	msg := ""
	if err := m.Err(); err != nil {
		status = "unhealthy"
		msg = err.Error()
	}
	return plugin.HealthStatus{
		Status:  status,
		Message: msg,
		Details: map[string]string{
			"samples_emitted": strconv.FormatUint(m.emitted.Load(), 10),
		},
	}
}

func (m *Module) run() {
	defer m.wg.Done()
	defer close(m.out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-m.done
		cancel()
	}()

	limiter := rate.NewLimiter(rate.Every(m.cfg.Interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return // closed
		}

		s, _, err := m.gen.Next()
		if err != nil {
			m.mu.Lock()
			m.failure = err
			m.mu.Unlock()
			m.logger.Error("sample generation failed, ending stream", zap.Error(err))
			if m.bus != nil {
				// The run context dies with this return; subscribers
				// handle the event asynchronously and need one that
				// outlives the loop.
				m.bus.PublishAsync(context.Background(), plugin.Event{
					Topic:   stream.TopicSourceFailed,
					Source:  "source",
					Payload: err.Error(),
				})
			}
			return
		}

		// Blocking send: the consumer's backlog is the backpressure signal.
		select {
		case m.out <- s:
			m.emitted.Add(1)
		case <-m.done:
			return
		}
	}
}
