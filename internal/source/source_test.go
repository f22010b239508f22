package source

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/HerbHall/driftwatch/internal/event"
	"github.com/HerbHall/driftwatch/pkg/plugin"
	"github.com/HerbHall/driftwatch/pkg/plugin/plugintest"
	"github.com/HerbHall/driftwatch/pkg/stream"
	"go.uber.org/zap"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero interval", func(c *Config) { c.Interval = 0 }, true},
		{"negative noise", func(c *Config) { c.NoiseStdDev = -1 }, true},
		{"probability above one", func(c *Config) { c.SpikeProbability = 1.5 }, true},
		{"amplitude without period", func(c *Config) { c.SeasonalPeriod = 0 }, true},
		{"zero buffer", func(c *Config) { c.Buffer = 0 }, true},
		{"flat signal", func(c *Config) {
			c.SeasonalAmplitude = 0
			c.SeasonalPeriod = 0
			c.NoiseStdDev = 0
			c.SpikeProbability = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42

	a := NewGenerator(cfg)
	b := NewGenerator(cfg)

	for i := 0; i < 200; i++ {
		sa, ia, errA := a.Next()
		sb, ib, errB := b.Next()
		if errA != nil || errB != nil {
			t.Fatalf("Next() errors at %d: %v / %v", i, errA, errB)
		}
		if sa != sb || ia != ib {
			t.Fatalf("sequences diverge at %d: %+v/%v vs %+v/%v", i, sa, ia, sb, ib)
		}
		if sa.Index != uint64(i) {
			t.Fatalf("index = %d, want %d", sa.Index, i)
		}
	}
}

func TestGenerator_FlatSignal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 1
	cfg.SeasonalAmplitude = 0
	cfg.NoiseStdDev = 0
	cfg.SpikeProbability = 0

	g := NewGenerator(cfg)
	for i := 0; i < 50; i++ {
		s, injected, err := g.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if injected {
			t.Fatal("injected spike with zero probability")
		}
		if s.Value != cfg.Baseline {
			t.Fatalf("sample %d = %v, want flat %v", i, s.Value, cfg.Baseline)
		}
	}
}

func TestGenerator_AlwaysSpikes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.SpikeProbability = 1

	g := NewGenerator(cfg)
	for i := 0; i < 20; i++ {
		_, injected, err := g.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if !injected {
			t.Fatalf("sample %d not flagged injected with probability 1", i)
		}
	}
}

func TestGenerator_NonFiniteIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 1
	cfg.Baseline = math.Inf(1)

	g := NewGenerator(cfg)
	_, _, err := g.Next()
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if genErr.Index != 0 {
		t.Errorf("failure index = %d, want 0", genErr.Index)
	}
}

func TestModule_EmitsAndCloses(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.cfg.Interval = time.Millisecond
	m.cfg.Seed = 42
	m.gen = NewGenerator(m.cfg)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var last uint64
	for i := 0; i < 5; i++ {
		select {
		case s, ok := <-m.Samples():
			if !ok {
				t.Fatal("channel closed early")
			}
			if i > 0 && s.Index != last+1 {
				t.Fatalf("index jumped from %d to %d", last, s.Index)
			}
			last = s.Index
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for sample")
		}
	}

	// Close twice: idempotent, and the channel ends.
	m.Close()
	m.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-m.Samples():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after Close")
		}
	}
}

func TestModule_StopsOnGenerationError(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.cfg.Interval = time.Millisecond
	m.cfg.Baseline = math.NaN()
	m.gen = NewGenerator(m.cfg)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Close()

	select {
	case _, ok := <-m.Samples():
		if ok {
			t.Fatal("received a sample from a NaN signal")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after fatal generation error")
	}

	var genErr *GenerationError
	if !errors.As(m.Err(), &genErr) {
		t.Errorf("Err() = %v, want *GenerationError", m.Err())
	}
}

// Subscribers handle the terminal failure event after the emission loop has
// returned; the context they receive must still be live so deliveries such
// as webhook notifications can run.
func TestModule_FailureEventContextOutlivesRun(t *testing.T) {
	bus := event.NewBus(zap.NewNop())

	type delivery struct {
		payload any
		ctxErr  error
	}
	got := make(chan delivery, 1)
	bus.Subscribe(stream.TopicSourceFailed, func(ctx context.Context, e plugin.Event) {
		got <- delivery{payload: e.Payload, ctxErr: ctx.Err()}
	})

	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Bus: bus}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.cfg.Interval = time.Millisecond
	m.cfg.Baseline = math.Inf(1)
	m.gen = NewGenerator(m.cfg)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Close()

	select {
	case d := <-got:
		if d.ctxErr != nil {
			t.Fatalf("handler context dead at entry: %v", d.ctxErr)
		}
		msg, ok := d.payload.(string)
		if !ok || msg == "" {
			t.Fatalf("payload = %#v, want non-empty error string", d.payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure event")
	}
}
