package registry

import (
	"context"
	"testing"

	"github.com/HerbHall/driftwatch/pkg/plugin"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// testPlugin is a minimal plugin.Plugin for registry tests.
type testPlugin struct {
	info    plugin.PluginInfo
	inits   *[]string
	starts  *[]string
	stops   *[]string
	initErr error
}

func newTestPlugin(name string, deps ...string) *testPlugin {
	return &testPlugin{
		info: plugin.PluginInfo{
			Name:         name,
			Version:      "0.1.0",
			Dependencies: deps,
			APIVersion:   plugin.APIVersionCurrent,
		},
	}
}

func (p *testPlugin) Info() plugin.PluginInfo { return p.info }

func (p *testPlugin) Init(_ context.Context, _ plugin.Dependencies) error {
	if p.inits != nil {
		*p.inits = append(*p.inits, p.info.Name)
	}
	return p.initErr
}

func (p *testPlugin) Start(_ context.Context) error {
	if p.starts != nil {
		*p.starts = append(*p.starts, p.info.Name)
	}
	return nil
}

func (p *testPlugin) Stop(_ context.Context) error {
	if p.stops != nil {
		*p.stops = append(*p.stops, p.info.Name)
	}
	return nil
}

// testEventSubPlugin implements both Plugin and EventSubscriber.
type testEventSubPlugin struct {
	testPlugin
	subscriptions []plugin.Subscription
}

func (p *testEventSubPlugin) Subscriptions() []plugin.Subscription { return p.subscriptions }

// testBus records subscriptions without dispatching.
type testBus struct {
	topics []string
}

func (b *testBus) Publish(_ context.Context, _ plugin.Event) error { return nil }
func (b *testBus) PublishAsync(_ context.Context, _ plugin.Event)  {}
func (b *testBus) Subscribe(topic string, _ plugin.EventHandler) func() {
	b.topics = append(b.topics, topic)
	return func() {}
}
func (b *testBus) SubscribeAll(_ plugin.EventHandler) func() { return func() {} }

func TestRegister_Duplicate(t *testing.T) {
	reg := New(testLogger())

	if err := reg.Register(newTestPlugin("source")); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := reg.Register(newTestPlugin("source")); err == nil {
		t.Error("Register() of duplicate name succeeded, want error")
	}
}

func TestValidate_MissingDependencyDisables(t *testing.T) {
	reg := New(testLogger())
	_ = reg.Register(newTestPlugin("pipeline", "source"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !reg.IsDisabled("pipeline") {
		t.Error("plugin with missing dependency not disabled")
	}
}

func TestValidate_MissingDependencyFailsRequired(t *testing.T) {
	reg := New(testLogger())
	p := newTestPlugin("pipeline", "source")
	p.info.Required = true
	_ = reg.Register(p)

	if err := reg.Validate(); err == nil {
		t.Error("Validate() succeeded with missing required dependency, want error")
	}
}

func TestValidate_Cycle(t *testing.T) {
	reg := New(testLogger())
	_ = reg.Register(newTestPlugin("a", "b"))
	_ = reg.Register(newTestPlugin("b", "a"))

	if err := reg.Validate(); err == nil {
		t.Error("Validate() succeeded with dependency cycle, want error")
	}
}

func TestLifecycle_Order(t *testing.T) {
	reg := New(testLogger())

	var inits, starts, stops []string
	src := newTestPlugin("source")
	src.inits, src.starts, src.stops = &inits, &starts, &stops
	pipe := newTestPlugin("pipeline", "source")
	pipe.inits, pipe.starts, pipe.stops = &inits, &starts, &stops

	_ = reg.Register(pipe)
	_ = reg.Register(src)
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	ctx := context.Background()
	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: testLogger().Named(name)}
	}); err != nil {
		t.Fatalf("InitAll() error: %v", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() error: %v", err)
	}
	reg.StopAll(ctx)

	want := []string{"source", "pipeline"}
	for i, name := range want {
		if inits[i] != name || starts[i] != name {
			t.Errorf("init/start order = %v / %v, want %v", inits, starts, want)
			break
		}
	}
	// Stops run in reverse dependency order.
	if len(stops) != 2 || stops[0] != "pipeline" || stops[1] != "source" {
		t.Errorf("stop order = %v, want [pipeline source]", stops)
	}
}

func TestInitAll_OptionalInitFailureDisables(t *testing.T) {
	reg := New(testLogger())
	p := newTestPlugin("alert")
	p.initErr = context.DeadlineExceeded
	_ = reg.Register(p)
	_ = reg.Validate()

	if err := reg.InitAll(context.Background(), func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: testLogger()}
	}); err != nil {
		t.Fatalf("InitAll() error: %v", err)
	}
	if !reg.IsDisabled("alert") {
		t.Error("optional plugin not disabled after failed Init")
	}
}

func TestInitAll_WiresEventSubscriber(t *testing.T) {
	reg := New(testLogger())

	p := &testEventSubPlugin{
		testPlugin: *newTestPlugin("alert"),
		subscriptions: []plugin.Subscription{
			{Topic: "stream.anomaly", Handler: func(_ context.Context, _ plugin.Event) {}},
			{Topic: "stream.source.failed", Handler: func(_ context.Context, _ plugin.Event) {}},
		},
	}
	_ = reg.Register(p)
	_ = reg.Validate()

	bus := &testBus{}
	if err := reg.InitAll(context.Background(), func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: testLogger(), Bus: bus}
	}); err != nil {
		t.Fatalf("InitAll() error: %v", err)
	}

	if len(bus.topics) != 2 || bus.topics[0] != "stream.anomaly" || bus.topics[1] != "stream.source.failed" {
		t.Errorf("wired topics = %v, want [stream.anomaly stream.source.failed]", bus.topics)
	}
}

func TestResolveByRole(t *testing.T) {
	reg := New(testLogger())
	p := newTestPlugin("source")
	p.info.Roles = []string{"stream_source"}
	_ = reg.Register(p)
	_ = reg.Register(newTestPlugin("pipeline"))
	_ = reg.Validate()

	got := reg.ResolveByRole("stream_source")
	if len(got) != 1 || got[0].Info().Name != "source" {
		t.Errorf("ResolveByRole() returned %d plugins, want exactly the source", len(got))
	}
}
