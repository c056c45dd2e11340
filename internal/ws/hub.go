// Package ws is the duplex WebSocket surface of the playback server: it
// broadcasts replayed frames and bridge state to every connected viewer
// and accepts playback control messages back from them.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aeroview-data/flight.report/internal/monitoring"
	"github.com/aeroview-data/flight.report/internal/replay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// clientBuffer is each client's outbound queue. A client that falls
	// this far behind a frame broadcast starts losing frames rather than
	// stalling the hub.
	clientBuffer = 64
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func mustEnvelope(event string, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			monitoring.Logf("ws: marshal %s payload: %v", event, err)
			return nil
		}
		raw = b
	}
	out, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		monitoring.Logf("ws: marshal %s envelope: %v", event, err)
		return nil
	}
	return out
}

// client is one connected WebSocket peer.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the client registry and fans messages out to it. All
// registry mutation happens on the Run goroutine via the register,
// unregister and broadcast channels.
type Hub struct {
	engine *replay.Engine

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.Mutex
	clients map[*client]bool

	upgrader websocket.Upgrader
}

// NewHub creates a hub bound to the engine that its control messages
// drive.
func NewHub(engine *replay.Engine) *Hub {
	return &Hub{
		engine:     engine,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, clientBuffer),
		clients:    make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Viewers connect from arbitrary origins (the static frontend
			// may be hosted elsewhere); frames are broadcast state, not
			// credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run owns the registry until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("ws: client %s connected (%d total)", c.id, n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				close(c.send)
				delete(h.clients, c)
			}
			n := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("ws: client %s disconnected (%d total)", c.id, n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Skip clients that cannot keep up; never block the
					// broadcast path.
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for every connected client. Drops the
// message when the hub itself is saturated.
func (h *Hub) Broadcast(event string, data any) {
	msg := mustEnvelope(event, data)
	if msg == nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler upgrades an HTTP request into a hub connection.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			monitoring.Logf("ws: upgrade failed: %v", err)
			return
		}

		c := &client{
			id:   uuid.NewString(),
			hub:  h,
			conn: conn,
			send: make(chan []byte, clientBuffer),
		}
		h.register <- c

		go c.writePump()
		go c.readPump()

		c.sendDirect("connected", map[string]string{"status": "ok", "client_id": c.id})
	}
}

// sendDirect queues a message for this client only.
func (c *client) sendDirect(event string, data any) {
	msg := mustEnvelope(event, data)
	if msg == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("ws: client %s read error: %v", c.id, err)
			}
			return
		}
		c.handleControl(msg)
	}
}
