package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/database"
	"secretsanta/server/internal/encryption"
	"secretsanta/server/internal/logger"
	"secretsanta/server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func postgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("set TEST_DATABASE_URL to run postgres repository tests")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn, logger.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func payload(s string) encryption.Payload {
	return encryption.Payload{Ciphertext: "ct-" + s, IV: "iv-" + s, Tag: "tag-" + s}
}

func seedRoom(t *testing.T, rooms RoomRepository, participants ...string) string {
	t.Helper()
	id := uuid.NewString()
	if err := rooms.Create(context.Background(), &models.Room{ID: id, Name: "Office exchange", Participants: participants}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return id
}

func newMessage(roomID, sender string, at time.Time) *models.Message {
	return &models.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  sender,
		Body:      payload("body"),
		Status:    models.StatusSent,
		CreatedAt: at,
	}
}

func TestMemoryRepositories(t *testing.T) {
	rooms := NewMemoryRoomRepository()
	t.Run("messages", func(t *testing.T) { testMessageRepository(t, NewMemoryMessageRepository(), rooms) })
	t.Run("rooms", func(t *testing.T) { testRoomRepository(t, rooms) })
}

func TestPostgresRepositories(t *testing.T) {
	pool := postgresPool(t)
	rooms := NewPostgresRoomRepository(pool)
	t.Run("messages", func(t *testing.T) { testMessageRepository(t, NewPostgresMessageRepository(pool), rooms) })
	t.Run("rooms", func(t *testing.T) { testRoomRepository(t, rooms) })
}

func testMessageRepository(t *testing.T, repo MessageRepository, rooms RoomRepository) {
	ctx := context.Background()
	roomID := seedRoom(t, rooms, "alice", "bob")
	base := time.Now().UTC().Truncate(time.Millisecond)

	// Same timestamp for the first two: insertion order must break the tie.
	first := newMessage(roomID, "alice", base)
	second := newMessage(roomID, "bob", base)
	third := newMessage(roomID, "alice", base.Add(-time.Second))
	third.Attachment = &models.Attachment{Path: payload("path"), Filename: payload("name"), FileType: models.FileTypeImage, Size: 42}
	for _, m := range []*models.Message{first, second, third} {
		if err := repo.Insert(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	list, err := repo.ListByRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	gotOrder := []string{}
	for _, m := range list {
		gotOrder = append(gotOrder, m.ID)
	}
	wantOrder := []string{third.ID, first.ID, second.ID}
	if fmt.Sprint(gotOrder) != fmt.Sprint(wantOrder) {
		t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
	}
	if list[0].Attachment == nil || list[0].Attachment.Size != 42 || list[0].Attachment.Filename != payload("name") {
		t.Fatalf("attachment not round tripped: %+v", list[0].Attachment)
	}

	editedAt := base.Add(time.Minute)
	if err := repo.ReplaceBody(ctx, first.ID, models.EditEntry{Body: first.Body, EditedAt: editedAt}, payload("v2")); err != nil {
		t.Fatalf("replace body: %v", err)
	}
	if err := repo.ReplaceBody(ctx, first.ID, models.EditEntry{Body: payload("v2"), EditedAt: editedAt}, payload("v3")); err != nil {
		t.Fatalf("replace body: %v", err)
	}
	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsEdited || got.Body != payload("v3") || len(got.EditHistory) != 2 || got.EditHistory[0].Body != payload("body") {
		t.Fatalf("edit history wrong: %+v", got)
	}

	r := models.Reaction{Emoji: "👍", UserID: "bob", Pseudonym: "Dasher", CreatedAt: base}
	reactions, err := repo.ToggleReaction(ctx, first.ID, r)
	if err != nil || len(reactions) != 1 || reactions[0].Pseudonym != "Dasher" {
		t.Fatalf("toggle on: %v %+v", err, reactions)
	}
	reactions, err = repo.ToggleReaction(ctx, first.ID, r)
	if err != nil || len(reactions) != 0 {
		t.Fatalf("toggle off: %v %+v", err, reactions)
	}

	if err := repo.UpdateStatus(ctx, first.ID, models.StatusDelivered); err != nil {
		t.Fatalf("status: %v", err)
	}
	deletedAt := base.Add(2 * time.Minute)
	if err := repo.MarkDeleted(ctx, first.ID, payload("gone"), deletedAt); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsDeleted || got.DeletedAt == nil || got.Body != payload("gone") || got.Status != models.StatusDelivered {
		t.Fatalf("delete not persisted: %+v", got)
	}
	if len(got.EditHistory) != 2 {
		t.Fatalf("delete touched edit history: %d", len(got.EditHistory))
	}

	if err := repo.ReplaceBody(ctx, first.ID, models.EditEntry{Body: got.Body, EditedAt: deletedAt}, payload("late")); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("replace after delete: err = %v, want ErrInvalidState", err)
	}
	if _, err := repo.ToggleReaction(ctx, first.ID, r); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("react after delete: err = %v, want ErrInvalidState", err)
	}
	got, err = repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Body != payload("gone") || len(got.EditHistory) != 2 || len(got.Reactions) != 0 {
		t.Fatalf("deleted message changed: %+v", got)
	}

	missing := uuid.NewString()
	checks := map[string]error{
		"get":     func() error { _, err := repo.Get(ctx, missing); return err }(),
		"replace": repo.ReplaceBody(ctx, missing, models.EditEntry{}, payload("x")),
		"delete":  repo.MarkDeleted(ctx, missing, payload("x"), base),
		"status":  repo.UpdateStatus(ctx, missing, models.StatusSent),
		"react":   func() error { _, err := repo.ToggleReaction(ctx, missing, r); return err }(),
	}
	for name, err := range checks {
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s on missing message: err = %v, want ErrNotFound", name, err)
		}
	}
}

func testRoomRepository(t *testing.T, rooms RoomRepository) {
	ctx := context.Background()
	roomID := seedRoom(t, rooms, "alice")

	if ok, err := rooms.IsMember(ctx, roomID, "alice"); err != nil || !ok {
		t.Fatalf("alice membership: %v %v", ok, err)
	}
	if ok, err := rooms.IsMember(ctx, roomID, "bob"); err != nil || ok {
		t.Fatalf("bob membership before join: %v %v", ok, err)
	}
	if err := rooms.AddParticipant(ctx, roomID, "bob"); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if ok, _ := rooms.IsMember(ctx, roomID, "bob"); !ok {
		t.Fatalf("bob should be a member")
	}
	if _, err := rooms.IsMember(ctx, uuid.NewString(), "bob"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing room: err = %v", err)
	}

	names, err := rooms.UpdatePseudonyms(ctx, roomID, func(names map[string]string) error {
		names["alice"] = "Rudolph"
		names["bob"] = "Comet"
		return nil
	})
	if err != nil || len(names) != 2 {
		t.Fatalf("update pseudonyms: %v %v", names, err)
	}

	// Renaming into a name freed in the same update must work.
	if _, err := rooms.UpdatePseudonyms(ctx, roomID, func(names map[string]string) error {
		names["alice"] = "Vixen"
		return nil
	}); err != nil {
		t.Fatalf("rename: %v", err)
	}

	sentinel := errors.New("abort")
	if _, err := rooms.UpdatePseudonyms(ctx, roomID, func(names map[string]string) error {
		names["alice"] = "Blitzen"
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("abort: err = %v", err)
	}

	room, err := rooms.Get(ctx, roomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.AnonymousNames["alice"] != "Vixen" || room.AnonymousNames["bob"] != "Comet" {
		t.Fatalf("names = %v", room.AnonymousNames)
	}
	if len(room.Participants) != 2 {
		t.Fatalf("participants = %v", room.Participants)
	}
}

func TestMemoryUpdatePseudonymsSerialisesPerRoom(t *testing.T) {
	rooms := NewMemoryRoomRepository()
	roomID := seedRoom(t, rooms)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = rooms.UpdatePseudonyms(context.Background(), roomID, func(names map[string]string) error {
				names[fmt.Sprintf("user-%d", i)] = fmt.Sprintf("name-%d", len(names))
				return nil
			})
		}(i)
	}
	wg.Wait()

	room, _ := rooms.Get(context.Background(), roomID)
	seen := map[string]bool{}
	for _, name := range room.AnonymousNames {
		if seen[name] {
			t.Fatalf("duplicate name %q in %v", name, room.AnonymousNames)
		}
		seen[name] = true
	}
	if len(seen) != 50 {
		t.Fatalf("got %d names, want 50", len(seen))
	}
}
