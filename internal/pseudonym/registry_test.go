package pseudonym

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/models"
	"secretsanta/server/internal/repository"
)

func newRoom(t *testing.T, users ...string) (*repository.MemoryRoomRepository, string) {
	t.Helper()
	rooms := repository.NewMemoryRoomRepository()
	if err := rooms.Create(context.Background(), &models.Room{ID: "room-1", Participants: users}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return rooms, "room-1"
}

func TestResolveIsStable(t *testing.T) {
	rooms, roomID := newRoom(t, "alice")
	reg := NewRegistry(rooms)
	ctx := context.Background()

	first, err := reg.Resolve(ctx, roomID, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := reg.Resolve(ctx, roomID, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Fatalf("pseudonym changed: %q then %q", first, second)
	}
	if first != Pool[0] {
		t.Fatalf("first allocation = %q, want %q", first, Pool[0])
	}

	room, _ := rooms.Get(ctx, roomID)
	if room.AnonymousNames["alice"] != first {
		t.Fatalf("assignment not persisted: %v", room.AnonymousNames)
	}
}

func TestResolveIsInjectiveAndFallsBack(t *testing.T) {
	rooms, roomID := newRoom(t)
	reg := NewRegistryWithPool(rooms, []string{"Rudolph", "Comet"})
	ctx := context.Background()

	seen := map[string]string{}
	for i := 0; i < 6; i++ {
		user := fmt.Sprintf("user-%d", i)
		name, err := reg.Resolve(ctx, roomID, user)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if other, dup := seen[name]; dup {
			t.Fatalf("%s and %s share %q", other, user, name)
		}
		seen[name] = user
	}
	for _, want := range []string{"Rudolph", "Comet", "Anonymous3", "Anonymous4", "Anonymous5", "Anonymous6"} {
		if _, ok := seen[want]; !ok {
			t.Errorf("missing %q in %v", want, seen)
		}
	}
}

func TestAllocateSkipsHandPickedFallbackName(t *testing.T) {
	names := map[string]string{"a": "Anonymous2"}
	got := Allocate(names, "b", nil)
	if got != "Anonymous3" {
		t.Fatalf("got %q, want Anonymous3", got)
	}
}

func TestResolveConcurrentUsers(t *testing.T) {
	rooms, roomID := newRoom(t)
	reg := NewRegistry(rooms)

	const n = 64
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name, err := reg.Resolve(context.Background(), roomID, fmt.Sprintf("user-%d", i))
			if err != nil {
				t.Errorf("resolve: %v", err)
			}
			results[i] = name
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, name := range results {
		if seen[name] {
			t.Fatalf("duplicate pseudonym %q", name)
		}
		seen[name] = true
	}
}

func TestSet(t *testing.T) {
	rooms, roomID := newRoom(t, "alice", "bob")
	reg := NewRegistry(rooms)
	ctx := context.Background()

	aliceName, _ := reg.Resolve(ctx, roomID, "alice")

	if _, err := reg.Set(ctx, roomID, "bob", aliceName); !errors.Is(err, apperr.ErrNameConflict) {
		t.Fatalf("conflict: err = %v", err)
	}
	if got, err := reg.Set(ctx, roomID, "alice", "  "+aliceName+" "); err != nil || got != aliceName {
		t.Fatalf("re-setting own name: %q %v", got, err)
	}
	if got, err := reg.Set(ctx, roomID, "bob", "Secret   Squirrel"); err != nil || got != "Secret Squirrel" {
		t.Fatalf("set: %q %v", got, err)
	}
	if got, _ := reg.Resolve(ctx, roomID, "bob"); got != "Secret Squirrel" {
		t.Fatalf("resolve after set = %q", got)
	}

	if _, err := reg.Set(ctx, roomID, "bob", "   "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("blank: err = %v", err)
	}
	if _, err := reg.Set(ctx, roomID, "bob", strings.Repeat("x", MaxNameLength+1)); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("too long: err = %v", err)
	}
	if _, err := reg.Resolve(ctx, "missing", "bob"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing room: err = %v", err)
	}
}

func TestRenameReportsPreviousNameUnderConcurrency(t *testing.T) {
	rooms, roomID := newRoom(t, "alice", "bob")
	reg := NewRegistry(rooms)
	ctx := context.Background()
	initial, _ := reg.Resolve(ctx, roomID, "bob")

	const renames = 20
	var mu sync.Mutex
	next := map[string]string{}
	var wg sync.WaitGroup
	for i := 0; i < renames; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			previous, name, err := reg.Rename(ctx, roomID, "bob", fmt.Sprintf("Elf %d", i))
			if err != nil {
				t.Errorf("rename: %v", err)
				return
			}
			mu.Lock()
			next[previous] = name
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// Every rename must start from the name the one before it produced.
	if len(next) != renames {
		t.Fatalf("%d distinct previous names for %d renames: %v", len(next), renames, next)
	}
	name := initial
	for i := 0; i < renames; i++ {
		n, ok := next[name]
		if !ok {
			t.Fatalf("chain broken after %q: %v", name, next)
		}
		name = n
	}
	if got, _ := reg.Resolve(ctx, roomID, "bob"); got != name {
		t.Fatalf("final name = %q, chain ends at %q", got, name)
	}
}

func TestMembership(t *testing.T) {
	rooms, roomID := newRoom(t, "alice", "bob")
	reg := NewRegistry(rooms)
	ctx := context.Background()

	if ok, err := reg.IsMember(ctx, roomID, "alice"); err != nil || !ok {
		t.Fatalf("alice member = %v, %v", ok, err)
	}
	if ok, err := reg.IsMember(ctx, roomID, "mallory"); err != nil || ok {
		t.Fatalf("mallory member = %v, %v", ok, err)
	}
	users, err := reg.Participants(ctx, roomID)
	if err != nil || len(users) != 2 {
		t.Fatalf("participants = %v, %v", users, err)
	}
	if _, err := reg.Participants(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing room: err = %v", err)
	}
}

func TestNamesDoesNotAllocate(t *testing.T) {
	rooms, roomID := newRoom(t, "alice", "bob")
	reg := NewRegistry(rooms)
	ctx := context.Background()

	aliceName, _ := reg.Resolve(ctx, roomID, "alice")
	names, err := reg.Names(ctx, roomID)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 1 || names["alice"] != aliceName {
		t.Fatalf("names = %v", names)
	}

	names["bob"] = "Intruder"
	room, _ := rooms.Get(ctx, roomID)
	if _, ok := room.AnonymousNames["bob"]; ok {
		t.Fatalf("snapshot mutation leaked into the room: %v", room.AnonymousNames)
	}
	if _, err := reg.Names(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing room: err = %v", err)
	}
}
