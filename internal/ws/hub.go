// Package ws streams live check results to websocket subscribers grouped by room.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames
	maxMessageSize = 512

	sendBuffer = 64

	streamType = "monitor"
)

// Message is the envelope written to subscribers
type Message struct {
	Type      string      `json:"type"`
	Room      string      `json:"room"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Limits bounds hub fan-out
type Limits struct {
	MaxConnections int
	MaxRoomSize    int
}

// Hub tracks subscribers per room and fans published messages out to them.
// A subscriber whose buffer is full is dropped rather than blocking Publish.
type Hub struct {
	logger   *zap.Logger
	limits   Limits
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	total   int
	stopped bool
}

// Client is one websocket subscriber
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
	room string
	once sync.Once
}

// NewHub creates a new hub
func NewHub(logger *zap.Logger, limits Limits) *Hub {
	if limits.MaxConnections <= 0 {
		limits.MaxConnections = 1000
	}
	if limits.MaxRoomSize <= 0 {
		limits.MaxRoomSize = 100
	}
	return &Hub{
		logger: logger,
		limits: limits,
		rooms:  make(map[string]map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish sends a message to every subscriber of room.
func (h *Hub) Publish(room, msgType string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      msgType,
		Room:      room,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	// Sends happen under the read lock; remove closes send channels under the
	// write lock, so a client seen here is never closed mid-send.
	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Removing unresponsive WebSocket client",
			zap.String("clientId", c.id),
			zap.String("room", room))
		h.remove(c)
	}
}

// ClientCount returns the number of subscribers across rooms
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// RoomSize returns the number of subscribers in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Stop disconnects every subscriber and rejects new ones
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	var all []*Client
	for _, clients := range h.rooms {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.remove(c)
	}
	h.logger.Info("WebSocket hub stopped", zap.Int("clients", len(all)))
}

// ServeWS upgrades the request and subscribes the connection to room
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, room string) {
	h.mu.RLock()
	stopped := h.stopped
	total := h.total
	roomSize := len(h.rooms[room])
	h.mu.RUnlock()

	switch {
	case stopped:
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	case total >= h.limits.MaxConnections:
		h.logger.Warn("WebSocket connection rejected, total connection limit reached",
			zap.Int("limit", h.limits.MaxConnections))
		http.Error(w, "Connection limit reached", http.StatusServiceUnavailable)
		return
	case roomSize >= h.limits.MaxRoomSize:
		h.logger.Warn("WebSocket connection rejected, room connection limit reached",
			zap.String("room", room),
			zap.Int("limit", h.limits.MaxRoomSize))
		http.Error(w, "Room connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
		room: room,
	}
	h.add(client)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	if h.rooms[c.room] == nil {
		h.rooms[c.room] = make(map[*Client]struct{})
	}
	h.rooms[c.room][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	metrics.RecordWebSocketConnection(streamType)
	h.logger.Debug("Client registered", zap.String("id", c.id), zap.String("room", c.room))
}

// remove unsubscribes c and closes its send channel exactly once
func (h *Hub) remove(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		if clients, ok := h.rooms[c.room]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.rooms, c.room)
			}
		}
		h.total--
		close(c.send)
		h.mu.Unlock()

		metrics.RecordWebSocketDisconnection(streamType)
		h.logger.Debug("Client unregistered", zap.String("id", c.id), zap.String("room", c.room))
	})
}

// readPump discards client frames and detects disconnects
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("Unexpected WebSocket close", zap.Error(err))
			}
			return
		}
	}
}

// writePump writes one frame per message and keeps the connection alive
func (c *Client) writePump() {
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
