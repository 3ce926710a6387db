package repository

import (
	"context"
	"time"

	"secretsanta/server/internal/encryption"
	"secretsanta/server/internal/models"
)

// MessageRepository persists encrypted chat messages. Implementations never
// see plaintext. Missing messages are reported as apperr.ErrNotFound.
type MessageRepository interface {
	// Insert stores a new message and assigns its Seq.
	Insert(ctx context.Context, m *models.Message) error

	// Get loads a message with its reactions and edit history.
	Get(ctx context.Context, id string) (*models.Message, error)

	// ListByRoom returns a room's messages ordered by CreatedAt, then Seq.
	ListByRoom(ctx context.Context, roomID string) ([]models.Message, error)

	// ReplaceBody appends prev to the edit history and installs body. A
	// deleted message is left untouched and reported as apperr.ErrInvalidState.
	ReplaceBody(ctx context.Context, id string, prev models.EditEntry, body encryption.Payload) error

	// MarkDeleted overwrites the body with placeholder and flags the message deleted.
	MarkDeleted(ctx context.Context, id string, placeholder encryption.Payload, at time.Time) error

	// ToggleReaction removes the (UserID, Emoji) reaction if present, otherwise
	// appends r. It returns the resulting reaction list. Deleted messages
	// are apperr.ErrInvalidState.
	ToggleReaction(ctx context.Context, id string, r models.Reaction) ([]models.Reaction, error)

	// UpdateStatus sets the delivery status.
	UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error
}

// RoomRepository reads rooms owned by the event service and stores the
// per-room pseudonym map.
type RoomRepository interface {
	Get(ctx context.Context, roomID string) (*models.Room, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)

	// UpdatePseudonyms runs fn over the room's current user->pseudonym map
	// while holding exclusive access to that room, then persists whatever fn
	// left in the map. Other rooms are not blocked. If fn returns an error
	// nothing is written.
	UpdatePseudonyms(ctx context.Context, roomID string, fn func(names map[string]string) error) (map[string]string, error)

	// Create and AddParticipant exist for seeding and tests; room
	// administration belongs to the event service.
	Create(ctx context.Context, room *models.Room) error
	AddParticipant(ctx context.Context, roomID, userID string) error
}
