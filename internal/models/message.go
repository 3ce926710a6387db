package models

import (
	"time"

	"secretsanta/server/internal/encryption"
)

// MessageStatus is the delivery state of a chat message
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// Valid reports whether s is a known delivery status
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSending, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// File type tags for attachments
const (
	FileTypeImage = "image"
	FileTypeVideo = "video"
	FileTypeAudio = "audio"
	FileTypeFile  = "file"
)

// Message is a persisted chat message. Every text field is encrypted.
type Message struct {
	ID          string             `json:"id" db:"id"`
	Seq         int64              `json:"-" db:"seq"` // storage insertion order, tie-break for CreatedAt
	RoomID      string             `json:"roomId" db:"room_id"`
	SenderID    string             `json:"senderId" db:"sender_id"`
	Body        encryption.Payload `json:"body"`
	Attachment  *Attachment        `json:"attachment,omitempty"`
	Reactions   []Reaction         `json:"reactions"`
	EditHistory []EditEntry        `json:"editHistory"`
	IsEdited    bool               `json:"isEdited" db:"is_edited"`
	IsDeleted   bool               `json:"isDeleted" db:"is_deleted"`
	DeletedAt   *time.Time         `json:"deletedAt,omitempty" db:"deleted_at"`
	Status      MessageStatus      `json:"status" db:"status"`
	CreatedAt   time.Time          `json:"createdAt" db:"created_at"`
}

// Attachment is an encrypted pointer into blob storage
type Attachment struct {
	Path     encryption.Payload `json:"path"`
	Filename encryption.Payload `json:"filename"`
	FileType string             `json:"fileType" db:"attachment_file_type"`
	Size     int64              `json:"size" db:"attachment_size"`
}

// Reaction is one (user, emoji) pair. Pseudonym is captured when the reaction is made.
type Reaction struct {
	Emoji     string    `json:"emoji" db:"emoji"`
	UserID    string    `json:"userId" db:"user_id"`
	Pseudonym string    `json:"pseudonym" db:"pseudonym"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// EditEntry is a snapshot of a previous body
type EditEntry struct {
	Body     encryption.Payload `json:"body"`
	EditedAt time.Time          `json:"editedAt" db:"edited_at"`
}

// MessageView is the decrypted projection handed to clients
type MessageView struct {
	ID              string          `json:"id"`
	RoomID          string          `json:"roomId"`
	SenderPseudonym string          `json:"senderPseudonym"`
	Text            string          `json:"text"`
	Attachment      *AttachmentView `json:"attachment,omitempty"`
	Reactions       []ReactionView  `json:"reactions"`
	IsEdited        bool            `json:"isEdited"`
	IsDeleted       bool            `json:"isDeleted"`
	Status          MessageStatus   `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// AttachmentView describes an attachment without revealing where it is stored
type AttachmentView struct {
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// ReactionView is a reaction as shown to room members
type ReactionView struct {
	Emoji     string    `json:"emoji"`
	Pseudonym string    `json:"pseudonym"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionViews projects reactions for display
func ReactionViews(reactions []Reaction) []ReactionView {
	out := make([]ReactionView, 0, len(reactions))
	for _, r := range reactions {
		out = append(out, ReactionView{Emoji: r.Emoji, Pseudonym: r.Pseudonym, CreatedAt: r.CreatedAt})
	}
	return out
}
