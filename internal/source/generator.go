package source

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/HerbHall/driftwatch/pkg/stream"
)

// GenerationError is a fatal generator failure. The stream cannot continue
// past it.
type GenerationError struct {
	Index uint64
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate sample %d: %v", e.Index, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces the synthetic signal: a flat baseline, an optional
// seasonal sine, Gaussian noise, and occasional injected spikes. A fixed
// seed reproduces the exact sequence.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	index uint64
}

// NewGenerator builds a generator. A zero cfg.Seed seeds from the clock.
func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Next produces the next sample. The injected flag reports whether a spike
// was added; it exists for tests and is never part of the sample itself.
func (g *Generator) Next() (s stream.Sample, injected bool, err error) {
	value := g.cfg.Baseline
	if g.cfg.SeasonalAmplitude != 0 {
		value += g.cfg.SeasonalAmplitude * math.Sin(2*math.Pi*float64(g.index)/g.cfg.SeasonalPeriod)
	}
	value += g.rng.NormFloat64() * g.cfg.NoiseStdDev

	if g.cfg.SpikeProbability > 0 && g.rng.Float64() < g.cfg.SpikeProbability {
		value += g.cfg.SpikeMean + g.rng.NormFloat64()*g.cfg.SpikeStdDev
		injected = true
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return stream.Sample{}, false, &GenerationError{
			Index: g.index,
			Err:   fmt.Errorf("non-finite value %v", value),
		}
	}

	s = stream.Sample{Index: g.index, Value: value}
	g.index++
	return s, injected, nil
}
