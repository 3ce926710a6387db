package chat

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/logger"
	"secretsanta/server/internal/messages"
	"secretsanta/server/internal/models"
	"secretsanta/server/internal/storage"
	"secretsanta/server/internal/websocket"

	"github.com/google/uuid"
)

// Rooms is the membership and pseudonym side of the service.
type Rooms interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	Resolve(ctx context.Context, roomID, userID string) (string, error)
	Rename(ctx context.Context, roomID, userID, requested string) (previous, name string, err error)
}

// Notifier pushes live events to connected room members.
type Notifier interface {
	NotifyRoom(ctx context.Context, roomID string, event websocket.EventType, payload interface{})
}

// Service serves chat operations for authenticated callers. Every operation
// requires the caller to be a current participant of the room involved.
type Service struct {
	store    *messages.Store
	rooms    Rooms
	blobs    storage.Storage
	notifier Notifier
	log      *logger.Logger
}

func NewService(store *messages.Store, rooms Rooms, blobs storage.Storage, notifier Notifier, log *logger.Logger) *Service {
	return &Service{store: store, rooms: rooms, blobs: blobs, notifier: notifier, log: log}
}

// Upload is a validated attachment on its way to blob storage.
type Upload struct {
	Filename    string
	ContentType string
	FileType    string
	Size        int64
	Body        io.Reader
}

// Download streams an attachment back to a room member.
type Download struct {
	Body     io.ReadCloser
	Filename string
	FileType string
	Size     int64
}

// ReactionUpdate is broadcast after a reaction toggle.
type ReactionUpdate struct {
	MessageID string                `json:"messageId"`
	Reactions []models.ReactionView `json:"reactions"`
}

// StatusUpdate is broadcast after a delivery status change.
type StatusUpdate struct {
	MessageID string               `json:"messageId"`
	Status    models.MessageStatus `json:"status"`
}

// PseudonymChange is broadcast when a participant renames themselves.
type PseudonymChange struct {
	Previous  string `json:"previous"`
	Pseudonym string `json:"pseudonym"`
}

func (s *Service) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user is not a participant of room %s: %w", roomID, apperr.ErrForbidden)
	}
	return nil
}

// requireMessageMember loads routing metadata and checks the caller belongs
// to the message's room.
func (s *Service) requireMessageMember(ctx context.Context, messageID, userID string) (*messages.MessageRef, error) {
	ref, err := s.store.Ref(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, ref.RoomID, userID); err != nil {
		return nil, err
	}
	return ref, nil
}

// ListMessages returns the full decrypted history of a room.
func (s *Service) ListMessages(ctx context.Context, roomID, requesterID string) ([]models.MessageView, error) {
	if err := s.requireMember(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	return s.store.List(ctx, roomID)
}

// SendMessage stores a text message and announces it to the room.
func (s *Service) SendMessage(ctx context.Context, roomID, senderID, text string) (*models.MessageView, error) {
	if err := s.requireMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	view, err := s.store.CreateMessage(ctx, roomID, senderID, text)
	if err != nil {
		return nil, err
	}

	s.log.Info("message sent", "room_id", roomID, "message_id", view.ID, "sender", senderID)
	s.notifier.NotifyRoom(ctx, roomID, websocket.EventMessageCreated, view)
	return view, nil
}

// SendAttachment writes the file to blob storage, then stores a message
// holding the encrypted pointer. The blob is removed if the message cannot be
// stored.
func (s *Service) SendAttachment(ctx context.Context, roomID, senderID string, up Upload, caption string) (*models.MessageView, error) {
	if err := s.requireMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("rooms/%s/%s%s", roomID, uuid.NewString(), strings.ToLower(filepath.Ext(up.Filename)))
	if err := s.blobs.Write(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	view, err := s.store.CreateAttachment(ctx, roomID, senderID, messages.AttachmentInput{
		StoragePath: key,
		Filename:    filepath.Base(up.Filename),
		FileType:    up.FileType,
		Size:        up.Size,
	}, caption)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.log.Warn("failed to remove orphaned attachment", "room_id", roomID, "error", delErr)
		}
		return nil, err
	}

	s.log.Info("attachment sent", "room_id", roomID, "message_id", view.ID, "file_type", up.FileType, "size", up.Size)
	s.notifier.NotifyRoom(ctx, roomID, websocket.EventMessageCreated, view)
	return view, nil
}

// EditMessage replaces the text of the caller's own message.
func (s *Service) EditMessage(ctx context.Context, messageID, editorID, text string) (*models.MessageView, error) {
	ref, err := s.requireMessageMember(ctx, messageID, editorID)
	if err != nil {
		return nil, err
	}

	view, err := s.store.Edit(ctx, messageID, editorID, text)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyRoom(ctx, ref.RoomID, websocket.EventMessageEdited, view)
	return view, nil
}

// DeleteMessage soft deletes the caller's own message.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	ref, err := s.requireMessageMember(ctx, messageID, requesterID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, messageID, requesterID); err != nil {
		return err
	}

	s.log.Info("message deleted", "room_id", ref.RoomID, "message_id", messageID)

	view, err := s.store.Get(ctx, messageID)
	if err != nil {
		s.log.Warn("failed to load deleted message for broadcast", "message_id", messageID, "error", err)
		return nil
	}
	s.notifier.NotifyRoom(ctx, ref.RoomID, websocket.EventMessageDeleted, view)
	return nil
}

// React toggles the caller's emoji on a message.
func (s *Service) React(ctx context.Context, messageID, userID, emoji string) ([]models.ReactionView, error) {
	ref, err := s.requireMessageMember(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	reactions, err := s.store.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyRoom(ctx, ref.RoomID, websocket.EventReactionToggled, ReactionUpdate{MessageID: messageID, Reactions: reactions})
	return reactions, nil
}

// UpdateStatus records delivery progress. Recipients may mark a message
// delivered; every other status belongs to the sender.
func (s *Service) UpdateStatus(ctx context.Context, messageID, userID string, status models.MessageStatus) error {
	ref, err := s.requireMessageMember(ctx, messageID, userID)
	if err != nil {
		return err
	}

	isSender := ref.SenderID == userID
	if (status == models.StatusDelivered) == isSender {
		return fmt.Errorf("set status %s on message %s: %w", status, messageID, apperr.ErrForbidden)
	}
	if err := s.store.UpdateStatus(ctx, messageID, status); err != nil {
		return err
	}

	s.notifier.NotifyRoom(ctx, ref.RoomID, websocket.EventMessageStatus, StatusUpdate{MessageID: messageID, Status: status})
	return nil
}

// OpenAttachment returns the attachment bytes of a message. The caller closes
// Body.
func (s *Service) OpenAttachment(ctx context.Context, messageID, userID string) (*Download, error) {
	if _, err := s.requireMessageMember(ctx, messageID, userID); err != nil {
		return nil, err
	}

	ref, err := s.store.OpenAttachment(ctx, messageID)
	if err != nil {
		return nil, err
	}

	body, err := s.blobs.Read(ctx, ref.StoragePath)
	if err != nil {
		return nil, err
	}
	return &Download{Body: body, Filename: ref.Filename, FileType: ref.FileType, Size: ref.Size}, nil
}

// GetPseudonym returns the caller's pseudonym in the room.
func (s *Service) GetPseudonym(ctx context.Context, roomID, userID string) (string, error) {
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return "", err
	}
	return s.rooms.Resolve(ctx, roomID, userID)
}

// SetPseudonym renames the caller within the room.
func (s *Service) SetPseudonym(ctx context.Context, roomID, userID, name string) (string, error) {
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return "", err
	}

	previous, name, err := s.rooms.Rename(ctx, roomID, userID, name)
	if err != nil {
		return "", err
	}

	if name != previous {
		s.notifier.NotifyRoom(ctx, roomID, websocket.EventPseudonymChanged, PseudonymChange{Previous: previous, Pseudonym: name})
	}
	return name, nil
}
