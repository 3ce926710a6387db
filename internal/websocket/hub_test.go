package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"secretsanta/server/internal/logger"
)

type fakeDirectory struct {
	rooms map[string][]string
	names map[string]string
}

func (d *fakeDirectory) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	users, ok := d.rooms[roomID]
	if !ok {
		return false, errors.New("no room")
	}
	for _, u := range users {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDirectory) Participants(ctx context.Context, roomID string) ([]string, error) {
	users, ok := d.rooms[roomID]
	if !ok {
		return nil, errors.New("no room")
	}
	return users, nil
}

func (d *fakeDirectory) Resolve(ctx context.Context, roomID, userID string) (string, error) {
	return d.names[userID], nil
}

type nopConn struct{}

func (nopConn) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("closed") }
func (nopConn) WriteMessage(int, []byte) error { return nil }
func (nopConn) SetReadDeadline(time.Time) error { return nil }
func (nopConn) SetWriteDeadline(time.Time) error { return nil }
func (nopConn) SetReadLimit(int64) {}
func (nopConn) SetPongHandler(func(string) error) {}
func (nopConn) Close() error { return nil }

func newTestHub() *Hub {
	return NewHub(&fakeDirectory{
		rooms: map[string][]string{"room-1": {"alice", "bob"}, "room-2": {"carol"}},
		names: map[string]string{"alice": "Rudolph", "bob": "Dasher", "carol": "Vixen"},
	}, logger.Nop())
}

func connect(h *Hub, userID string) *Client {
	c := NewClient(userID, nopConn{}, h)
	h.registerClient(c)
	return c
}

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		if !ok {
			t.Fatalf("%s: send channel closed", c.UserID)
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	default:
		t.Fatalf("%s: no message queued", c.UserID)
	}
	return WSMessage{}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("%s: unexpected message %s", c.UserID, data)
	default:
	}
}

func TestNotifyRoomReachesOnlyParticipants(t *testing.T) {
	h := newTestHub()
	alice, bob, carol := connect(h, "alice"), connect(h, "bob"), connect(h, "carol")

	h.NotifyRoom(context.Background(), "room-1", EventMessageCreated, map[string]string{"id": "m1"})

	for _, c := range []*Client{alice, bob} {
		msg := receive(t, c)
		if msg.Type != EventMessageCreated || msg.RoomID != "room-1" {
			t.Fatalf("%s got %+v", c.UserID, msg)
		}
	}
	assertEmpty(t, carol)
	if h.OnlineCount() != 3 {
		t.Fatalf("online = %d", h.OnlineCount())
	}
}

func TestTypingUsesPseudonym(t *testing.T) {
	h := newTestHub()
	alice, bob := connect(h, "alice"), connect(h, "bob")

	alice.handleTyping(context.Background(), EventTypingStart, "room-1")

	assertEmpty(t, alice)
	msg := receive(t, bob)
	payload, _ := msg.Payload.(map[string]interface{})
	if msg.Type != EventTypingStart || payload["pseudonym"] != "Rudolph" {
		t.Fatalf("typing event = %+v", msg)
	}
	if _, leaked := payload["userId"]; leaked {
		t.Fatalf("typing event exposes user id")
	}
}

func TestTypingOutsideRoomIsRejected(t *testing.T) {
	h := newTestHub()
	alice, carol := connect(h, "alice"), connect(h, "carol")

	carol.handleTyping(context.Background(), EventTypingStart, "room-1")

	assertEmpty(t, alice)
	if msg := receive(t, carol); msg.Type != EventError {
		t.Fatalf("carol got %+v", msg)
	}
}

func TestReconnectReplacesClient(t *testing.T) {
	h := newTestHub()
	first := connect(h, "alice")
	second := connect(h, "alice")

	if _, ok := <-first.Send; ok {
		t.Fatalf("replaced client still open")
	}

	// The stale connection shutting down must not evict the new one
	h.unregisterClient(first)
	if !h.IsUserOnline("alice") {
		t.Fatalf("new connection was removed")
	}

	h.unregisterClient(second)
	if h.IsUserOnline("alice") {
		t.Fatalf("client still online after unregister")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}

	// Serve after shutdown returns instead of blocking
	h.Serve(context.Background(), "alice", nopConn{})
}
