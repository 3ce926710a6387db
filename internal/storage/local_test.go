package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/config"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	key := "rooms/room-1/file.txt"

	if err := s.Write(ctx, key, strings.NewReader("stocking list"), 13, "text/plain"); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := s.Read(ctx, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "stocking list" {
		t.Fatalf("content = %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.Read(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("read after delete: err = %v", err)
	}
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"../outside", "a/../../outside", "/etc/passwd", ""} {
		err := s.Write(context.Background(), key, strings.NewReader("x"), 1, "")
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("key %q: err = %v, want ErrInvalidInput", key, err)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{
		Backend: "local",
		Local:   config.LocalConfig{BasePath: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := s.(*LocalStorage); !ok {
		t.Fatalf("backend = %T", s)
	}

	if _, err := New(context.Background(), config.StorageConfig{Backend: "ftp"}); err == nil {
		t.Fatalf("unknown backend accepted")
	}
}
