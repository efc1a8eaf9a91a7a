package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscribeMessage is the only client→server frame.
type subscribeMessage struct {
	Type  string `json:"type"`
	Items []Item `json:"items"`
}

// ackFrame acknowledges a subscribe with the resulting interest set.
type ackFrame struct {
	Type  string `json:"type"`
	Items []Item `json:"items"`
}

// Hub owns the live websocket connections and keeps the subscription
// registry in sync with their lifecycles. Sending to an unknown or closed
// connection is a silent no-op.
type Hub struct {
	registry *Registry

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a hub bound to the given registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry: registry,
		clients:  make(map[string]*client),
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// HandleConn upgrades an HTTP request to a websocket connection and runs
// its read/write pumps.
func (h *Hub) HandleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	log.Info().Str("conn_id", c.id).Msg("stream client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// SendJSON marshals a frame and delivers it to one connection.
func (h *Hub) SendJSON(connID string, payload interface{}) {
	message, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal stream frame")
		return
	}
	h.Send(connID, message)
}

// Send delivers an already-encoded frame to one connection. Frames to
// unknown connections or connections with a full send buffer are dropped;
// a dropped frame is never an error and never mutates the registry.
func (h *Hub) Send(connID string, message []byte) {
	// The lock is held across the channel send so remove cannot close the
	// channel out from under us.
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}

	select {
	case c.send <- message:
	default:
		// Slow consumer; drop the frame, the next tick retries naturally.
	}
}

// remove tears a connection down: future deliveries stop atomically once
// the client leaves the map, and the registry entry goes with it. The send
// channel is closed under the same lock that guards deliveries.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.mu.Unlock()

	h.registry.Unregister(c.id)
	log.Info().Str("conn_id", c.id).Msg("stream client disconnected")
}

// readPump consumes client frames. Unparseable or unknown messages are
// dropped and the connection stays alive; only transport errors end it.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("stream read error")
			}
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "subscribe" {
			log.Debug().Str("conn_id", c.id).Msg("dropping malformed stream message")
			continue
		}

		accepted := h.registry.Subscribe(c.id, msg.Items)
		h.SendJSON(c.id, ackFrame{Type: "subscribed", Items: accepted})
	}
}

// writePump flushes the send buffer to the socket and keeps the
// connection alive with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
