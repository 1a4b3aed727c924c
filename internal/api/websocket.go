package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/emubot-core/internal/infrastructure/config"
	"github.com/nerrad567/emubot-core/internal/infrastructure/logging"
	"github.com/nerrad567/emubot-core/internal/runner"
)

// Message types on the status stream.
const (
	WSTypeEvent = "event"
	WSTypePing  = "ping"
	WSTypePong  = "pong"
	WSTypeError = "error"

	// ChannelRunStatus is the event type of runner.RunStatus payloads.
	ChannelRunStatus = "run.status"

	wsSendBufferSize = 256

	// Keepalive fallbacks in seconds for a zero-valued config.
	defaultPingInterval = 30
	defaultPongTimeout  = 10
)

// WSMessage is one frame of the status stream. Clients only ever send
// pings; the server sends run status events, pongs and errors.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub fans run status changes out to every connected stream client.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	subject string // token subject; empty when auth is disabled
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware has already vetted the origin.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates a hub. Zero keepalive settings fall back to 30s/10s.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// StatusChanged implements runner.StatusObserver. It never blocks: a client
// whose buffer is full misses the update.
func (h *Hub) StatusChanged(st runner.RunStatus) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ChannelRunStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   st,
	})
	if err != nil {
		h.logger.Error("encoding run status", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.deliverLocked(c, data)
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("status stream client connected", "subject", c.subject, "clients", n)
}

// unregister removes c and closes its send channel. Repeated calls are safe.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("status stream client disconnected", "subject", c.subject, "clients", n)
}

// reply queues data for c if it is still registered.
func (h *Hub) reply(c *wsClient, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.deliverLocked(c, data)
	}
}

// deliverLocked needs h.mu held; channels are only closed under the write
// lock, so the send cannot race with a close.
func (h *Hub) deliverLocked(c *wsClient, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Debug("status stream client lagging, update dropped", "subject", c.subject)
	}
}

func (h *Hub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// handleWebSocket upgrades the request to a status stream. Authentication
// has already happened in authMiddleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBufferSize)}
	if claims := claimsFromContext(r.Context()); claims != nil {
		c.subject = claims.Subject
	}

	s.hub.register(c)
	go s.hub.writePump(c)
	go s.hub.readPump(c)
}

// readPump answers pings until the connection fails or goes quiet for
// longer than one ping interval plus the pong timeout.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	if h.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	}
	idle := time.Duration(h.cfg.PingInterval+h.cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	_ = extend() //nolint:errcheck // checked on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("status stream read failed", "subject", c.subject, "error", err)
			}
			return
		}
		_ = extend() //nolint:errcheck // checked on the next read

		var msg WSMessage
		switch {
		case json.Unmarshal(data, &msg) != nil:
			h.reply(c, frame(WSTypeError, "", map[string]string{"message": "invalid JSON message"}))
		case msg.Type == WSTypePing:
			h.reply(c, frame(WSTypePong, msg.ID, nil))
		default:
			h.reply(c, frame(WSTypeError, msg.ID, map[string]string{"message": "unsupported message type: " + msg.Type}))
		}
	}
}

// writePump drains c.send and sends protocol pings on the configured interval.
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(time.Duration(h.cfg.PingInterval) * time.Second)
	writeWait := time.Duration(h.cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write reports it
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write reports it
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func frame(msgType, id string, payload any) []byte {
	data, _ := json.Marshal(WSMessage{ //nolint:errcheck // fixed shapes always encode
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	return data
}
