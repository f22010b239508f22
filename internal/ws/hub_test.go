package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/driftwatch/internal/event"
	"github.com/HerbHall/driftwatch/pkg/plugin"
	"github.com/HerbHall/driftwatch/pkg/stream"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestClient(remote string) *Client {
	return &Client{
		conn:   nil, // Not needed for hub tests
		remote: remote,
		send:   make(chan Message, sendBuffer),
		logger: testLogger(),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d, want 0", hub.ClientCount())
	}

	client := newTestClient("10.0.0.1:52100")
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() after Register = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after Unregister = %d, want 0", hub.ClientCount())
	}

	// The send channel closes on unregister.
	if _, ok := <-client.send; ok {
		t.Error("client.send channel is not closed")
	}

	// A second unregister, and unregistering a never-registered client,
	// must not panic.
	hub.Unregister(client)
	hub.Unregister(newTestClient("10.0.0.2:52101"))
}

func TestBroadcast_AllClients(t *testing.T) {
	hub := NewHub(testLogger())

	clients := []*Client{
		newTestClient("10.0.0.1:1"),
		newTestClient("10.0.0.2:2"),
		newTestClient("10.0.0.3:3"),
	}
	for _, c := range clients {
		hub.Register(c)
	}

	hub.Broadcast(Message{
		Type:      MessageVerdict,
		Timestamp: time.Now(),
		Data:      VerdictData{Verdict: stream.Verdict{Index: 7, Value: 51.2}},
	})

	for i, c := range clients {
		select {
		case received := <-c.send:
			if received.Type != MessageVerdict {
				t.Errorf("client %d received Type = %v, want %v", i, received.Type, MessageVerdict)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive message", i)
		}
	}
}

func TestBroadcast_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("10.0.0.1:1")
	hub.Register(client)

	for i := 0; i < sendBuffer; i++ {
		client.send <- Message{Type: MessageVerdict, Timestamp: time.Now()}
	}

	hub.Broadcast(Message{
		Type:      MessageSourceError,
		Timestamp: time.Now(),
		Data:      SourceErrorData{Error: "should be dropped"},
	})

	if len(client.send) != sendBuffer {
		t.Errorf("buffer length = %d, want %d (message should have been dropped)",
			len(client.send), sendBuffer)
	}
	if received := <-client.send; received.Type == MessageSourceError {
		t.Error("dropped message was unexpectedly received")
	}
}

func TestBroadcast_Concurrent(t *testing.T) {
	hub := NewHub(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := newTestClient("concurrent")
			hub.Register(client)
			go func() {
				for range client.send {
				}
			}()
			time.Sleep(10 * time.Millisecond)
			hub.Unregister(client)
		}()
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.Broadcast(Message{
				Type:      MessageSnapshot,
				Timestamp: time.Now(),
				Data:      SnapshotData{Baseline: stream.BaselineSnapshot{Samples: uint64(n)}},
			})
		}(i)
	}

	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after all clients left, want 0", hub.ClientCount())
	}
}

func TestHandler_ForwardsBusEvents(t *testing.T) {
	bus := event.NewBus(testLogger())
	h := NewHandler(bus, testLogger())

	client := newTestClient("10.0.0.1:1")
	h.hub.Register(client)

	rec := &stream.AnomalyRecord{ID: "a1", Index: 25, ZScore: 9.4, Severity: stream.SeverityCritical}
	if err := bus.Publish(context.Background(), plugin.Event{
		Topic:   stream.TopicAnomaly,
		Source:  "pipeline",
		Payload: rec,
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-client.send:
		if msg.Type != MessageAnomaly {
			t.Fatalf("message type = %v, want %v", msg.Type, MessageAnomaly)
		}
		data, ok := msg.Data.(AnomalyData)
		if !ok || data.Record.ID != "a1" {
			t.Errorf("payload = %+v, want anomaly a1", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no message forwarded from bus")
	}

	// Payloads of the wrong type are ignored, not broadcast.
	if err := bus.Publish(context.Background(), plugin.Event{
		Topic:   stream.TopicAnomaly,
		Source:  "pipeline",
		Payload: "not a record",
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-client.send:
		t.Fatalf("unexpected message %+v for malformed payload", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
