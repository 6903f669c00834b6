package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// Message represents a WebSocket message
type Message struct {
	Type      string         `json:"type"`
	Payload   any            `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID   string
	Conn *websocket.Conn
	Room string
	Send chan *Message
	Hub  *Hub

	closeOnce sync.Once
}

// NewClient wraps conn for room. Register it with hub.Register and run both
// pumps.
func NewClient(hub *Hub, conn *websocket.Conn, room string) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Room: room,
		Send: make(chan *Message, sendBufferSize),
		Hub:  hub,
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Hub manages all WebSocket connections and rooms
type Hub struct {
	logger *slog.Logger

	// Registered clients grouped by room
	rooms map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast messages to room
	broadcast chan *BroadcastMessage

	// Active clients by ID for quick lookup
	clients map[string]*Client

	done chan struct{}
	mu   sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to a room
type BroadcastMessage struct {
	Room    string
	Message *Message
	Exclude *Client // Optional: exclude this client from broadcast
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "websocket_hub"),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		clients:    make(map[string]*Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return
		}
	}
}

// registerClient adds a client to a room
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true
	size := len(h.rooms[client.Room])
	h.mu.Unlock()

	h.logger.Debug("client joined room", "client_id", client.ID, "room", client.Room, "room_size", size)
	h.enqueue(&BroadcastMessage{
		Room:    client.Room,
		Message: NewMessage("client_joined", map[string]any{"client_id": client.ID, "room_size": size}),
		Exclude: client,
	})
}

// unregisterClient removes a client from a room
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)

	clients, ok := h.rooms[client.Room]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	client.closeSend()
	size := len(clients)
	if size == 0 {
		delete(h.rooms, client.Room)
	}
	h.mu.Unlock()

	h.logger.Debug("client left room", "client_id", client.ID, "room", client.Room, "room_size", size)
	if size > 0 {
		h.enqueue(&BroadcastMessage{
			Room:    client.Room,
			Message: NewMessage("client_left", map[string]any{"client_id": client.ID, "room_size": size}),
		})
	}
}

// enqueue is used from inside the run loop, so it must not block on the
// channel the loop drains.
func (h *Hub) enqueue(bm *BroadcastMessage) {
	select {
	case h.broadcast <- bm:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "room", bm.Room, "type", bm.Message.Type)
	}
}

// broadcastToRoom sends a message to all clients in a room
func (h *Hub) broadcastToRoom(bm *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[bm.Room] {
		if bm.Exclude != nil && client.ID == bm.Exclude.ID {
			continue
		}

		select {
		case client.Send <- bm.Message:
		default:
			// Client's send channel is full, drop message to avoid disconnecting
			h.logger.Warn("client send channel full, dropping message", "client_id", client.ID)
		}
	}
}

// GetRoomSize returns the number of clients in a room
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastToRoom queues a message for all clients in a room. It gives up
// when the hub has stopped.
func (h *Hub) BroadcastToRoom(room string, message *Message) {
	select {
	case h.broadcast <- &BroadcastMessage{Room: room, Message: message}:
	case <-h.done:
	}
}

// Join registers client with the hub. It reports false when the hub has
// stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// NewMessage stamps a message with the current time.
func NewMessage(msgType string, payload any) *Message {
	return &Message{Type: msgType, Payload: payload, Timestamp: time.Now()}
}

// shutdown closes all connections gracefully
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeSend()
		if client.Conn != nil {
			client.Conn.Close()
		}
	}

	h.rooms = make(map[string]map[*Client]bool)
	h.clients = make(map[string]*Client)
}

// ReadPump drains the connection so control frames are processed. Clients
// of this server only listen, so data frames are ignored.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Debug("read error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// WritePump pumps messages from hub to WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(msgType string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client send channel is closed")
		}
	}()

	select {
	case c.Send <- NewMessage(msgType, payload):
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}
