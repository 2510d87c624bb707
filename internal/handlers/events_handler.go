package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	// clientSendBuffer bounds the per-client backlog. A client that
	// falls this far behind is dropped rather than slowing the bus.
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

// EventsHandler fans research lifecycle events out to websocket clients.
type EventsHandler struct {
	logger        arbor.ILogger
	events        interfaces.EventService
	allowedEvents map[string]bool

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// NewEventsHandler creates an EventsHandler subscribed to every published
// event. An empty allowed-events list broadcasts all event types.
func NewEventsHandler(events interfaces.EventService, logger arbor.ILogger, config *common.EventsConfig) *EventsHandler {
	h := &EventsHandler{
		logger:        logger,
		events:        events,
		allowedEvents: make(map[string]bool),
		clients:       make(map[*websocket.Conn]chan []byte),
	}

	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for event stream")
	}

	if events != nil {
		if err := events.Subscribe(interfaces.EventAny, h.onEvent); err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe event stream to bus")
		}
	}

	return h
}

// HandleWebSocket handles GET /api/events websocket upgrades.
func (h *EventsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	send := make(chan []byte, clientSendBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("Event stream client connected (total: %d)", total)

	go h.writeLoop(conn, send)

	// Read loop exists only to notice the disconnect; inbound frames
	// are discarded.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("Event stream read error")
			}
			break
		}
	}

	h.dropClient(conn, "disconnected")
}

// ClientCount returns the number of connected clients.
func (h *EventsHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connected client.
func (h *EventsHandler) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.dropClient(conn, "server shutdown")
	}
}

// onEvent is the bus subscription: marshal once, then offer the frame to
// every client without blocking. Clients with a full buffer are dropped.
func (h *EventsHandler) onEvent(ctx context.Context, event interfaces.Event) error {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(event.Type)] {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal event")
		return nil
	}

	var stalled []*websocket.Conn
	h.mu.RLock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			stalled = append(stalled, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range stalled {
		h.dropClient(conn, "send buffer full")
	}
	return nil
}

func (h *EventsHandler) writeLoop(conn *websocket.Conn, send chan []byte) {
	for data := range send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// Closing the conn unblocks the read loop, which
			// unregisters the client and closes this channel.
			conn.Close()
		}
	}
}

func (h *EventsHandler) dropClient(conn *websocket.Conn, reason string) {
	h.mu.Lock()
	send, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(send)
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	conn.Close()
	h.logger.Debug().Msgf("Event stream client dropped (%s, remaining: %d)", reason, remaining)
}
