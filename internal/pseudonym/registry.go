package pseudonym

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/repository"
)

// MaxNameLength bounds user chosen pseudonyms, in runes.
const MaxNameLength = 32

// Pool is the curated list handed out in order before falling back to
// generated names.
var Pool = []string{
	"Rudolph", "Dasher", "Dancer", "Prancer", "Vixen", "Comet", "Cupid", "Donner", "Blitzen",
	"Frosty", "Jack Frost", "Buddy the Elf", "Nutcracker", "Sugar Plum", "Gingerbread",
	"Mistletoe", "Holly", "Tinsel", "Jingle", "Snowflake", "Candy Cane", "Krampus",
	"Mrs. Claus", "The Grinch", "Cindy Lou", "Olaf", "Hermey", "Yukon Cornelius",
}

// Registry assigns each room participant a stable pseudonym that no other
// participant of the same room holds.
type Registry struct {
	rooms repository.RoomRepository
	pool  []string
}

func NewRegistry(rooms repository.RoomRepository) *Registry {
	return &Registry{rooms: rooms, pool: Pool}
}

// NewRegistryWithPool is NewRegistry with a custom name pool.
func NewRegistryWithPool(rooms repository.RoomRepository, pool []string) *Registry {
	return &Registry{rooms: rooms, pool: append([]string(nil), pool...)}
}

// Resolve returns the user's pseudonym in the room, allocating and persisting
// one on first use.
func (r *Registry) Resolve(ctx context.Context, roomID, userID string) (string, error) {
	var name string
	_, err := r.rooms.UpdatePseudonyms(ctx, roomID, func(names map[string]string) error {
		name = Allocate(names, userID, r.pool)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve pseudonym: %w", err)
	}
	return name, nil
}

// Names returns a copy of the room's pseudonym map without allocating.
func (r *Registry) Names(ctx context.Context, roomID string) (map[string]string, error) {
	room, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(room.AnonymousNames))
	for userID, name := range room.AnonymousNames {
		names[userID] = name
	}
	return names, nil
}

// Set assigns requested to the user, failing with apperr.ErrNameConflict when
// another participant of the room already holds it.
func (r *Registry) Set(ctx context.Context, roomID, userID, requested string) (string, error) {
	_, name, err := r.Rename(ctx, roomID, userID, requested)
	return name, err
}

// Rename is Set that also returns the name the user held before, read in the
// same update. A user without a name is allocated one first.
func (r *Registry) Rename(ctx context.Context, roomID, userID, requested string) (previous, name string, err error) {
	name, err = NormalizeName(requested)
	if err != nil {
		return "", "", err
	}
	_, err = r.rooms.UpdatePseudonyms(ctx, roomID, func(names map[string]string) error {
		previous = Allocate(names, userID, r.pool)
		return Assign(names, userID, name)
	})
	if err != nil {
		return "", "", fmt.Errorf("set pseudonym: %w", err)
	}
	return previous, name, nil
}

// IsMember reports whether userID participates in the room. A missing room is
// apperr.ErrNotFound.
func (r *Registry) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return r.rooms.IsMember(ctx, roomID, userID)
}

// Participants lists the user ids of the room.
func (r *Registry) Participants(ctx context.Context, roomID string) ([]string, error) {
	room, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room.Participants, nil
}

// Allocate returns the existing name for userID, or records the first free
// pool name, or "Anonymous<n>" once the pool is used up.
func Allocate(names map[string]string, userID string, pool []string) string {
	if name, ok := names[userID]; ok {
		return name
	}

	taken := make(map[string]bool, len(names))
	for _, v := range names {
		taken[v] = true
	}

	for _, candidate := range pool {
		if !taken[candidate] {
			names[userID] = candidate
			return candidate
		}
	}

	// A user may have picked "AnonymousN" by hand, so keep counting until free.
	for n := len(names) + 1; ; n++ {
		candidate := "Anonymous" + strconv.Itoa(n)
		if !taken[candidate] {
			names[userID] = candidate
			return candidate
		}
	}
}

// Assign sets names[userID] = name unless a different user holds name.
func Assign(names map[string]string, userID, name string) error {
	for holder, held := range names {
		if held == name && holder != userID {
			return fmt.Errorf("%q: %w", name, apperr.ErrNameConflict)
		}
	}
	names[userID] = name
	return nil
}

// NormalizeName trims and validates a user chosen pseudonym.
func NormalizeName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", apperr.ErrInvalidInput, MaxNameLength)
	}
	return name, nil
}
