package ws

import (
	"context"
	"net/http"

	"github.com/HerbHall/driftwatch/pkg/plugin"
	"github.com/HerbHall/driftwatch/pkg/stream"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler provides the WebSocket endpoint for live stream updates.
type Handler struct {
	hub    *Hub
	bus    plugin.EventBus
	logger *zap.Logger
}

// NewHandler creates a WebSocket handler and subscribes it to the pipeline
// topics it forwards.
func NewHandler(bus plugin.EventBus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		bus:    bus,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/stream", h.handleStream)
}

// ClientCount reports connected clients, for health reporting.
func (h *Handler) ClientCount() int {
	return h.hub.ClientCount()
}

// handleStream upgrades the connection and streams pipeline events until
// the client disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan Message, sendBuffer),
		logger: h.logger,
	}

	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until the client disconnects.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribeToEvents forwards pipeline bus events to all connected clients.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}

	h.bus.Subscribe(stream.TopicVerdict, func(_ context.Context, event plugin.Event) {
		verdict, ok := event.Payload.(stream.Verdict)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageVerdict,
			Timestamp: event.Timestamp,
			Data:      VerdictData{Verdict: verdict},
		})
	})

	h.bus.Subscribe(stream.TopicAnomaly, func(_ context.Context, event plugin.Event) {
		rec, ok := event.Payload.(*stream.AnomalyRecord)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageAnomaly,
			Timestamp: event.Timestamp,
			Data:      AnomalyData{Record: rec},
		})
	})

	h.bus.Subscribe(stream.TopicSnapshot, func(_ context.Context, event plugin.Event) {
		baseline, ok := event.Payload.(stream.BaselineSnapshot)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageSnapshot,
			Timestamp: event.Timestamp,
			Data:      SnapshotData{Baseline: baseline},
		})
	})

	h.bus.Subscribe(stream.TopicSourceFailed, func(_ context.Context, event plugin.Event) {
		errMsg, ok := event.Payload.(string)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageSourceError,
			Timestamp: event.Timestamp,
			Data:      SourceErrorData{Error: errMsg},
		})
	})

	h.logger.Info("subscribed to pipeline events for WebSocket broadcasting")
}
