package websocket

import "time"

// EventType represents different WebSocket event types
type EventType string

const (
	// Message events
	EventMessageCreated EventType = "message_created"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventMessageStatus  EventType = "message_status"

	// Reaction events
	EventReactionToggled EventType = "reaction_toggled"

	// Room events
	EventPseudonymChanged EventType = "pseudonym_changed"

	// Typing events
	EventTypingStart EventType = "typing_start"
	EventTypingStop  EventType = "typing_stop"

	// Error events
	EventError EventType = "error"
)

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      EventType   `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// TypingPayload represents typing indicator payload
type TypingPayload struct {
	RoomID    string `json:"roomId"`
	Pseudonym string `json:"pseudonym"`
}

// ErrorPayload represents error event payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IncomingMessage represents messages received from clients
type IncomingMessage struct {
	Type    EventType `json:"type"`
	Payload struct {
		RoomID string `json:"roomId"`
	} `json:"payload"`
}
