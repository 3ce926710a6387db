package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"secretsanta/server/internal/logger"
)

// Directory answers room membership and pseudonym questions for the hub.
type Directory interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	Participants(ctx context.Context, roomID string) ([]string, error)
	Resolve(ctx context.Context, roomID, userID string) (string, error)
}

// Hub maintains the set of active clients and fans room events out to them
type Hub struct {
	// Registered clients mapped by user ID
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	directory Directory
	log       *logger.Logger

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(directory Directory, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		directory:  directory,
		log:        log,
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Serve attaches an upgraded connection for userID and blocks until it closes
func (h *Hub) Serve(ctx context.Context, userID string, conn Conn) {
	client := NewClient(userID, conn, h)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump(ctx)
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// One connection per user; the newest wins
	if existing, ok := h.clients[client.UserID]; ok {
		close(existing.Send)
	}
	h.clients[client.UserID] = client

	h.log.Debug("websocket client connected", "user_id", client.UserID, "online", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A replaced connection was already closed on register
	if current, ok := h.clients[client.UserID]; ok && current == client {
		delete(h.clients, client.UserID)
		close(client.Send)
		h.log.Debug("websocket client disconnected", "user_id", client.UserID, "online", len(h.clients))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
}

// NotifyRoom sends an event to every connected participant of the room
func (h *Hub) NotifyRoom(ctx context.Context, roomID string, event EventType, payload interface{}) {
	h.broadcastToRoom(ctx, roomID, WSMessage{
		Type:      event,
		RoomID:    roomID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}, "")
}

// broadcastToRoom delivers message to connected participants, skipping excludeUserID
func (h *Hub) broadcastToRoom(ctx context.Context, roomID string, message WSMessage, excludeUserID string) {
	userIDs, err := h.directory.Participants(ctx, roomID)
	if err != nil {
		h.log.Warn("failed to load room participants", "room_id", roomID, "error", err)
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("failed to marshal websocket message", "type", message.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range userIDs {
		if userID == excludeUserID {
			continue
		}
		if client, ok := h.clients[userID]; ok {
			select {
			case client.Send <- data:
			default:
				h.log.Warn("websocket send buffer full", "user_id", userID)
			}
		}
	}
}

// sendTo delivers a message to one user if connected
func (h *Hub) sendTo(userID string, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[userID]; ok {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// IsUserOnline checks if a user is currently connected
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}

// OnlineCount returns the number of currently connected clients
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
