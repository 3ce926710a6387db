package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/encryption"
	"secretsanta/server/internal/models"
)

// MemoryMessageRepository keeps messages in process memory. It backs the
// "memory" database driver and the unit tests.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	seq      int64
	messages map[string]*models.Message
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{messages: make(map[string]*models.Message)}
}

func (r *MemoryMessageRepository) Insert(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[m.ID]; ok {
		return fmt.Errorf("message %s already exists", m.ID)
	}
	r.seq++
	m.Seq = r.seq
	r.messages[m.ID] = cloneMessage(m)
	return nil
}

func (r *MemoryMessageRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return cloneMessage(m), nil
}

func (r *MemoryMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Message, 0)
	for _, m := range r.messages {
		if m.RoomID == roomID {
			out = append(out, *cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r *MemoryMessageRepository) ReplaceBody(ctx context.Context, id string, prev models.EditEntry, body encryption.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	if m.IsDeleted {
		return fmt.Errorf("message %s is deleted: %w", id, apperr.ErrInvalidState)
	}
	m.EditHistory = append(m.EditHistory, prev)
	m.Body = body
	m.IsEdited = true
	return nil
}

func (r *MemoryMessageRepository) MarkDeleted(ctx context.Context, id string, placeholder encryption.Payload, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	m.Body = placeholder
	m.IsDeleted = true
	m.DeletedAt = &at
	return nil
}

func (r *MemoryMessageRepository) ToggleReaction(ctx context.Context, id string, reaction models.Reaction) ([]models.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("message %s is deleted: %w", id, apperr.ErrInvalidState)
	}

	kept := make([]models.Reaction, 0, len(m.Reactions)+1)
	removed := false
	for _, existing := range m.Reactions {
		if existing.UserID == reaction.UserID && existing.Emoji == reaction.Emoji {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		kept = append(kept, reaction)
	}
	m.Reactions = kept

	return append([]models.Reaction(nil), kept...), nil
}

func (r *MemoryMessageRepository) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	m.Status = status
	return nil
}

// Tamper lets tests corrupt a stored record in place.
func (r *MemoryMessageRepository) Tamper(id string, fn func(m *models.Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		fn(m)
	}
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	c.Reactions = append([]models.Reaction(nil), m.Reactions...)
	c.EditHistory = append([]models.EditEntry(nil), m.EditHistory...)
	return &c
}

// MemoryRoomRepository keeps rooms in process memory. Pseudonym updates are
// serialised per room.
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
	locks map[string]*sync.Mutex
}

func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[string]*models.Room),
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *MemoryRoomRepository) Create(ctx context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; ok {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	c := cloneRoom(room)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.rooms[room.ID] = c
	r.locks[room.ID] = &sync.Mutex{}
	return nil
}

func (r *MemoryRoomRepository) AddParticipant(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, apperr.ErrNotFound)
	}
	if !room.IsParticipant(userID) {
		room.Participants = append(room.Participants, userID)
	}
	return nil
}

func (r *MemoryRoomRepository) Get(ctx context.Context, roomID string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, apperr.ErrNotFound)
	}
	return cloneRoom(room), nil
}

func (r *MemoryRoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := r.Get(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.IsParticipant(userID), nil
}

func (r *MemoryRoomRepository) UpdatePseudonyms(ctx context.Context, roomID string, fn func(names map[string]string) error) (map[string]string, error) {
	r.mu.RLock()
	lock, ok := r.locks[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, apperr.ErrNotFound)
	}

	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	names := copyNames(r.rooms[roomID].AnonymousNames)
	r.mu.RUnlock()

	if err := fn(names); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.rooms[roomID].AnonymousNames = copyNames(names)
	r.mu.Unlock()

	return names, nil
}

func cloneRoom(room *models.Room) *models.Room {
	c := *room
	c.Participants = append([]string(nil), room.Participants...)
	c.AnonymousNames = copyNames(room.AnonymousNames)
	return &c
}

func copyNames(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
