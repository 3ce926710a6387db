package logger

import (
	"strings"
	"testing"
)

func TestSanitizeRedactsPlaintext(t *testing.T) {
	l := Nop()
	out := l.sanitize([]interface{}{
		"message_id", "m1",
		"text", "the gift is a scarf",
		"filename", "scarf.jpg",
		"user_id", "u1",
		"dangling",
	})

	want := map[string]func(interface{}) bool{
		"message_id": func(v interface{}) bool { return v == "m1" },
		"text":       func(v interface{}) bool { return v == "[REDACTED]" },
		"filename":   func(v interface{}) bool { return v == "[REDACTED]" },
		"user_id":    func(v interface{}) bool { s, _ := v.(string); return strings.HasPrefix(s, "hash:") },
	}
	for i := 0; i+1 < len(out); i += 2 {
		check, ok := want[out[i].(string)]
		if !ok {
			t.Fatalf("unexpected key %v", out[i])
		}
		if !check(out[i+1]) {
			t.Errorf("%v => %v", out[i], out[i+1])
		}
	}
	if out[len(out)-1] != "dangling" {
		t.Errorf("odd trailing key dropped: %v", out)
	}
}
