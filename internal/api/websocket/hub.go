package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const writeTimeout = 5 * time.Second

// envelope is the wire format pushed to subscribers. The message type is
// carried both lowercase and uppercased so dashboard clients can switch on
// either field.
type envelope struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// Hub fans live pipeline output out to connected dashboard sockets. A send
// that fails or times out evicts the subscriber; slow clients never stall
// the broadcast path.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// HandleConnection upgrades the request and parks the connection in the hub.
// The read loop exists only to notice the peer going away.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	monitoring.ActiveWebSocketConnections.Set(float64(count))
	h.logger.Info("websocket client connected", "remote", r.RemoteAddr, "clients", count)

	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	monitoring.ActiveWebSocketConnections.Set(float64(count))
}

// Broadcast marshals the payload once and writes it to every subscriber.
// Failed writes evict the subscriber immediately.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	payload, err := json.Marshal(envelope{
		Type:      messageType,
		Event:     strings.ToUpper(messageType),
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "type", messageType, "error", err)
		return
	}

	h.mu.Lock()
	var dead []*websocket.Conn
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	monitoring.BroadcastsTotal.WithLabelValues(messageType).Inc()
	monitoring.ActiveWebSocketConnections.Set(float64(count))
	if len(dead) > 0 {
		h.logger.Warn("evicted unresponsive websocket clients", "count", len(dead))
	}
}

// ClientCount reports current subscriber count for health output.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	monitoring.ActiveWebSocketConnections.Set(0)
}
