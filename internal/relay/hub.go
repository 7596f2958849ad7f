// Package relay implements the WebSocket fan-out hub between strategy
// scripts and dashboard clients. There are exactly two rooms: producers join
// "script", consumers join "dashboard", and every message from a script
// client is forwarded verbatim to every dashboard client. The platform
// itself publishes into the dashboard room through Publish.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Room names. A client's first message selects one of these.
const (
	RoomScript    = "script"
	RoomDashboard = "dashboard"
)

const (
	// joinWait bounds how long a fresh connection may take to send its
	// join message.
	joinWait = 10 * time.Second
	// writeWait bounds a single write to a client.
	writeWait = 10 * time.Second
	// pongWait is the read deadline, refreshed by pongs.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings keep the
	// connection alive.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize caps inbound messages.
	maxMessageSize = 32 * 1024
	// sendBuffer is the per-client outbound queue; a client that falls
	// this far behind is dropped.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins, same as the CORS
	// policy on the REST API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Event is the envelope for messages the platform itself publishes into the
// dashboard room.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// joined is the ack sent to a client once its join has been applied.
type joined struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// client is one WebSocket connection with its room and outbound queue.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	room string
	send chan []byte
}

// Hub owns all relay clients. A single goroutine (Run) serializes
// registration and fan-out, so the client map needs no lock.
type Hub struct {
	log *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	scriptCount    atomic.Int64
	dashboardCount atomic.Int64
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:        logger.With("component", "relay"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop. It returns when ctx is cancelled, closing every
// client connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	clients := make(map[*client]bool)

	remove := func(c *client) {
		if !clients[c] {
			return
		}
		delete(clients, c)
		close(c.send)
		h.roomCounter(c.room).Add(-1)
		h.log.Debug("client left", "room", c.room)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				close(c.send)
			}
			return

		case c := <-h.register:
			clients[c] = true
			h.roomCounter(c.room).Add(1)
			h.log.Debug("client joined", "room", c.room)
			// Ack after registration so a client that has seen the ack
			// is guaranteed to receive subsequent broadcasts.
			if data, err := json.Marshal(joined{Type: "joined", Room: c.room}); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}

		case c := <-h.unregister:
			remove(c)

		case msg := <-h.broadcast:
			for c := range clients {
				if c.room != RoomDashboard {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Slow consumer; drop it rather than stall the loop.
					h.log.Warn("dropping slow dashboard client")
					remove(c)
				}
			}
		}
	}
}

// Publish marshals v and fans it out to the dashboard room. Platform
// components use this for messages like Event{Type: "signal"}.
func (h *Hub) Publish(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding relay message: %w", err)
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return fmt.Errorf("relay hub stopped")
	}
}

// Counts returns the number of connected clients per room.
func (h *Hub) Counts() (script, dashboard int) {
	return int(h.scriptCount.Load()), int(h.dashboardCount.Load())
}

func (h *Hub) roomCounter(room string) *atomic.Int64 {
	if room == RoomScript {
		return &h.scriptCount
	}
	return &h.dashboardCount
}

// HandleWS upgrades the connection, waits for the join message, and hands
// the client to the hub loop. It is mounted at GET /ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	room, err := readJoin(conn)
	if err != nil {
		h.log.Warn("rejecting websocket client", "error", err)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		room: room,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	go c.readPump()

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
	}
}

// readJoin reads the mandatory first message and validates the room.
func readJoin(conn *websocket.Conn) (string, error) {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(joinWait)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("reading join message: %w", err)
	}
	var req struct {
		Join string `json:"join"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return "", fmt.Errorf("parsing join message: %w", err)
	}
	if req.Join != RoomScript && req.Join != RoomDashboard {
		return "", fmt.Errorf("unknown room %q", req.Join)
	}
	return req.Join, nil
}

// readPump consumes inbound messages until the connection drops. Messages
// from script clients are broadcast; messages from dashboard clients are
// ignored.
func (c *client) readPump() {
	defer func() {
		c.drop()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.room != RoomScript {
			continue
		}
		select {
		case c.hub.broadcast <- msg:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drop unregisters the client unless the hub has already stopped.
func (c *client) drop() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}
