package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/encryption"
	"secretsanta/server/internal/logger"
	"secretsanta/server/internal/models"
	"secretsanta/server/internal/repository"

	"github.com/google/uuid"
)

const (
	// DeletedText replaces the body of a deleted message.
	DeletedText = "This message was deleted"
	// UndecryptableText is shown in a listing for a record that fails
	// integrity or decryption.
	UndecryptableText = "[message could not be decrypted]"

	MaxTextLength  = 4000
	MaxEmojiLength = 16
)

// Cipher is the subset of encryption.Engine the store needs.
type Cipher interface {
	Encrypt(plaintext string) (encryption.Payload, error)
	Decrypt(p encryption.Payload) (string, error)
	Verify(p encryption.Payload) error
}

// PseudonymResolver yields participants' display names in a room. Names is a
// read-only snapshot; Resolve allocates a name when the user has none yet.
type PseudonymResolver interface {
	Resolve(ctx context.Context, roomID, userID string) (string, error)
	Names(ctx context.Context, roomID string) (map[string]string, error)
}

// Store is the only component that handles message ciphertext. Everything it
// returns is already decrypted into views.
type Store struct {
	repo   repository.MessageRepository
	cipher Cipher
	names  PseudonymResolver
	log    *logger.Logger
	now    func() time.Time
}

func NewStore(repo repository.MessageRepository, cipher Cipher, names PseudonymResolver, log *logger.Logger) *Store {
	return &Store{
		repo:   repo,
		cipher: cipher,
		names:  names,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AttachmentInput describes a file already written to blob storage.
type AttachmentInput struct {
	StoragePath string
	Filename    string
	FileType    string
	Size        int64
}

// AttachmentRef is a decrypted attachment pointer, for streaming the file back.
type AttachmentRef struct {
	StoragePath string
	Filename    string
	FileType    string
	Size        int64
}

// MessageRef is the routing metadata of a message, without content.
type MessageRef struct {
	ID        string
	RoomID    string
	SenderID  string
	IsDeleted bool
}

// CreateMessage encrypts and stores a text message. The returned text is
// decrypted from the stored record, not echoed from the argument.
func (s *Store) CreateMessage(ctx context.Context, roomID, senderID, text string) (*models.MessageView, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}
	body, err := s.cipher.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	return s.insert(ctx, &models.Message{RoomID: roomID, SenderID: senderID, Body: body})
}

// CreateAttachment stores a message pointing at a blob. Path and filename are
// encrypted independently of each other and of the body.
func (s *Store) CreateAttachment(ctx context.Context, roomID, senderID string, in AttachmentInput, caption string) (*models.MessageView, error) {
	if in.StoragePath == "" || in.Filename == "" {
		return nil, fmt.Errorf("%w: attachment path and filename are required", apperr.ErrInvalidInput)
	}

	text := strings.TrimSpace(caption)
	if text == "" {
		text = attachmentText(in.FileType)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, fmt.Errorf("%w: caption must be at most %d characters", apperr.ErrInvalidInput, MaxTextLength)
	}

	body, err := s.cipher.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt caption: %w", err)
	}
	path, err := s.cipher.Encrypt(in.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("encrypt storage path: %w", err)
	}
	name, err := s.cipher.Encrypt(in.Filename)
	if err != nil {
		return nil, fmt.Errorf("encrypt filename: %w", err)
	}

	return s.insert(ctx, &models.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Body:     body,
		Attachment: &models.Attachment{
			Path:     path,
			Filename: name,
			FileType: in.FileType,
			Size:     in.Size,
		},
	})
}

func (s *Store) insert(ctx context.Context, m *models.Message) (*models.MessageView, error) {
	m.ID = uuid.NewString()
	m.Status = models.StatusSent
	m.CreatedAt = s.now()
	m.Reactions = []models.Reaction{}
	m.EditHistory = []models.EditEntry{}

	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, err
	}
	return s.Get(ctx, m.ID)
}

// Get loads and decrypts one message. Integrity and decryption failures are
// returned to the caller.
func (s *Store) Get(ctx context.Context, id string) (*models.MessageView, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, m, nil)
}

// Ref returns routing metadata for a message.
func (s *Store) Ref(ctx context.Context, id string) (*MessageRef, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MessageRef{ID: m.ID, RoomID: m.RoomID, SenderID: m.SenderID, IsDeleted: m.IsDeleted}, nil
}

// List returns the room's history oldest first. A record that fails integrity
// or decryption is replaced by a placeholder entry; the rest of the listing is
// unaffected.
func (s *Store) List(ctx context.Context, roomID string) ([]models.MessageView, error) {
	msgs, err := s.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	names := map[string]string{}
	if len(msgs) > 0 {
		if names, err = s.names.Names(ctx, roomID); err != nil {
			return nil, err
		}
	}
	out := make([]models.MessageView, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		v, err := s.view(ctx, m, names)
		if errors.Is(err, encryption.ErrIntegrity) || errors.Is(err, encryption.ErrDecryption) {
			s.log.Warn("message could not be decrypted", "message_id", m.ID, "room_id", m.RoomID, "error", err)
			v, err = s.placeholderView(ctx, m, names)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Edit replaces the body of a message. Only the sender may edit, and not after
// deletion. The previous payload is appended to the edit history unchanged.
func (s *Store) Edit(ctx context.Context, id, editorID, text string) (*models.MessageView, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("edit message %s: %w", id, apperr.ErrForbidden)
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("edit message %s: %w", id, apperr.ErrInvalidState)
	}
	// Do not archive a record that was tampered with.
	if err := s.cipher.Verify(m.Body); err != nil {
		return nil, fmt.Errorf("edit message %s: %w", id, err)
	}

	body, err := s.cipher.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	prev := models.EditEntry{Body: m.Body, EditedAt: s.now()}
	if err := s.repo.ReplaceBody(ctx, id, prev, body); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete soft deletes a message by overwriting its body with an encrypted
// placeholder. Edit history and reactions are kept. Deleting twice is a no-op.
func (s *Store) Delete(ctx context.Context, id, requesterID string) error {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.SenderID != requesterID {
		return fmt.Errorf("delete message %s: %w", id, apperr.ErrForbidden)
	}
	if m.IsDeleted {
		return nil
	}

	placeholder, err := s.cipher.Encrypt(DeletedText)
	if err != nil {
		return fmt.Errorf("encrypt placeholder: %w", err)
	}
	return s.repo.MarkDeleted(ctx, id, placeholder, s.now())
}

// ToggleReaction adds the user's emoji, or removes it if already present. The
// pseudonym is captured now and never re-resolved.
func (s *Store) ToggleReaction(ctx context.Context, id, userID, emoji string) ([]models.ReactionView, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > MaxEmojiLength {
		return nil, fmt.Errorf("%w: emoji must be 1 to %d characters", apperr.ErrInvalidInput, MaxEmojiLength)
	}

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("react to message %s: %w", id, apperr.ErrInvalidState)
	}

	name, err := s.names.Resolve(ctx, m.RoomID, userID)
	if err != nil {
		return nil, err
	}

	reactions, err := s.repo.ToggleReaction(ctx, id, models.Reaction{
		Emoji:     emoji,
		UserID:    userID,
		Pseudonym: name,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	return models.ReactionViews(reactions), nil
}

// UpdateStatus records a delivery status change.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

// OpenAttachment decrypts the blob pointer of a message.
func (s *Store) OpenAttachment(ctx context.Context, id string) (*AttachmentRef, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("attachment of message %s: %w", id, apperr.ErrInvalidState)
	}
	if m.Attachment == nil {
		return nil, fmt.Errorf("attachment of message %s: %w", id, apperr.ErrNotFound)
	}

	path, err := s.cipher.Decrypt(m.Attachment.Path)
	if err != nil {
		return nil, fmt.Errorf("attachment path: %w", err)
	}
	name, err := s.cipher.Decrypt(m.Attachment.Filename)
	if err != nil {
		return nil, fmt.Errorf("attachment filename: %w", err)
	}
	return &AttachmentRef{StoragePath: path, Filename: name, FileType: m.Attachment.FileType, Size: m.Attachment.Size}, nil
}

func (s *Store) view(ctx context.Context, m *models.Message, names map[string]string) (*models.MessageView, error) {
	text, err := s.cipher.Decrypt(m.Body)
	if err != nil {
		return nil, fmt.Errorf("message %s body: %w", m.ID, err)
	}

	var attachment *models.AttachmentView
	if m.Attachment != nil && !m.IsDeleted {
		if err := s.cipher.Verify(m.Attachment.Path); err != nil {
			return nil, fmt.Errorf("message %s attachment path: %w", m.ID, err)
		}
		filename, err := s.cipher.Decrypt(m.Attachment.Filename)
		if err != nil {
			return nil, fmt.Errorf("message %s attachment filename: %w", m.ID, err)
		}
		attachment = &models.AttachmentView{
			Filename: filename,
			FileType: m.Attachment.FileType,
			Size:     m.Attachment.Size,
			URL:      AttachmentURL(m.ID),
		}
	}

	v, err := s.baseView(ctx, m, names)
	if err != nil {
		return nil, err
	}
	v.Text = text
	v.Attachment = attachment
	return v, nil
}

func (s *Store) placeholderView(ctx context.Context, m *models.Message, names map[string]string) (*models.MessageView, error) {
	v, err := s.baseView(ctx, m, names)
	if err != nil {
		return nil, err
	}
	v.Text = UndecryptableText
	return v, nil
}

func (s *Store) baseView(ctx context.Context, m *models.Message, names map[string]string) (*models.MessageView, error) {
	sender, ok := names[m.SenderID]
	if !ok {
		var err error
		sender, err = s.names.Resolve(ctx, m.RoomID, m.SenderID)
		if err != nil {
			return nil, err
		}
		if names != nil {
			names[m.SenderID] = sender
		}
	}

	return &models.MessageView{
		ID:              m.ID,
		RoomID:          m.RoomID,
		SenderPseudonym: sender,
		Reactions:       models.ReactionViews(m.Reactions),
		IsEdited:        m.IsEdited,
		IsDeleted:       m.IsDeleted,
		Status:          m.Status,
		CreatedAt:       m.CreatedAt,
	}, nil
}

// AttachmentURL is the download route for a message attachment.
func AttachmentURL(messageID string) string {
	return "/api/v1/messages/" + messageID + "/attachment"
}

func normalizeText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text is required", apperr.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", fmt.Errorf("%w: text must be at most %d characters", apperr.ErrInvalidInput, MaxTextLength)
	}
	return text, nil
}

func attachmentText(fileType string) string {
	switch fileType {
	case models.FileTypeImage:
		return "Shared an image"
	case models.FileTypeVideo:
		return "Shared a video"
	case models.FileTypeAudio:
		return "Shared a voice note"
	default:
		return "Shared a file"
	}
}
