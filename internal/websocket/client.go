package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Conn is the part of a websocket connection the client pumps use
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents a WebSocket client connection
type Client struct {
	UserID string
	Conn   Conn
	Hub    *Hub
	Send   chan []byte
}

// NewClient creates a new WebSocket client
func NewClient(userID string, conn Conn, hub *Hub) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan []byte, sendBuffer),
	}
}

// ReadPump handles incoming messages from the client
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read error", "user_id", c.UserID, "error", err)
			}
			break
		}

		var incoming IncomingMessage
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.sendError("bad_message", "Message must be JSON")
			continue
		}
		c.handleIncomingMessage(ctx, incoming)
	}
}

// WritePump handles outgoing messages to the client
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
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) handleIncomingMessage(ctx context.Context, msg IncomingMessage) {
	switch msg.Type {
	case EventTypingStart, EventTypingStop:
		c.handleTyping(ctx, msg.Type, msg.Payload.RoomID)
	default:
		c.sendError("unknown_type", "Unknown message type")
	}
}

// handleTyping relays a typing indicator under the sender's pseudonym
func (c *Client) handleTyping(ctx context.Context, event EventType, roomID string) {
	if roomID == "" {
		c.sendError("bad_message", "roomId is required")
		return
	}

	ok, err := c.Hub.directory.IsMember(ctx, roomID, c.UserID)
	if err != nil || !ok {
		c.sendError("forbidden", "Not a member of this room")
		return
	}

	name, err := c.Hub.directory.Resolve(ctx, roomID, c.UserID)
	if err != nil {
		c.Hub.log.Warn("failed to resolve pseudonym for typing event", "room_id", roomID, "error", err)
		return
	}

	c.Hub.broadcastToRoom(ctx, roomID, WSMessage{
		Type:      event,
		RoomID:    roomID,
		Payload:   TypingPayload{RoomID: roomID, Pseudonym: name},
		Timestamp: time.Now().UTC(),
	}, c.UserID)
}

func (c *Client) sendError(code, message string) {
	c.Hub.sendTo(c.UserID, WSMessage{
		Type:      EventError,
		Payload:   ErrorPayload{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}
