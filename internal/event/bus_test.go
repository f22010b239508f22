package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/driftwatch/pkg/plugin"
	"go.uber.org/zap"
)

func TestBus_PublishDeliversToTopic(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []plugin.Event
	bus.Subscribe("stream.verdict", func(_ context.Context, e plugin.Event) {
		got = append(got, e)
	})
	bus.Subscribe("stream.anomaly", func(_ context.Context, e plugin.Event) {
		t.Errorf("unexpected delivery to stream.anomaly: %+v", e)
	})

	err := bus.Publish(context.Background(), plugin.Event{Topic: "stream.verdict", Source: "pipeline"})
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("event timestamp not set by bus")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var count int
	bus.SubscribeAll(func(_ context.Context, _ plugin.Event) { count++ })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "a"})
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "b"})

	if count != 2 {
		t.Errorf("wildcard handler called %d times, want 2", count)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var count int
	unsub := bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { count++ })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "t"})
	unsub()
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "t"})

	if count != 1 {
		t.Errorf("handler called %d times, want 1 after unsubscribe", count)
	}
}

func TestBus_HandlerPanicRecovered(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) {
		panic("handler bug")
	})
	var delivered bool
	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) {
		delivered = true
	})

	if err := bus.Publish(context.Background(), plugin.Event{Topic: "t"}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if !delivered {
		t.Error("second handler not called after first panicked")
	}
}

func TestBus_PublishAsync(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) {
		wg.Done()
	})

	bus.PublishAsync(context.Background(), plugin.Event{Topic: "t"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler not invoked within 2s")
	}
}
