package encryption

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine([]byte(strings.Repeat("k", KeySize)), []byte(strings.Repeat("m", KeySize)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := testEngine(t)

	cases := map[string]string{
		"empty":       "",
		"ascii":       "hello",
		"block sized": strings.Repeat("a", 16),
		"unicode":     "Frohe Weihnachten 🎄 メリークリスマス",
		"long":        strings.Repeat("ho ho ho ", 2000),
	}
	for name, plain := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := e.Encrypt(plain)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			got, err := e.Decrypt(p)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if got != plain {
				t.Fatalf("round trip mismatch: got %q want %q", got, plain)
			}
		})
	}
}

func TestPayloadShape(t *testing.T) {
	e := testEngine(t)
	p, err := e.Encrypt("x")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(p.IV) != 32 {
		t.Errorf("iv hex length = %d, want 32", len(p.IV))
	}
	if len(p.Tag) != 64 {
		t.Errorf("tag hex length = %d, want 64", len(p.Tag))
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	e := testEngine(t)
	a, err := e.Encrypt("same text")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := e.Encrypt("same text")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a.IV == b.IV {
		t.Fatalf("iv reused: %s", a.IV)
	}
	if a.Ciphertext == b.Ciphertext {
		t.Fatalf("identical ciphertext for repeated plaintext")
	}
}

func flipBit(t *testing.T, hexStr string, bit int) string {
	t.Helper()
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b[bit/8] ^= 1 << (bit % 8)
	return hex.EncodeToString(b)
}

func TestDecryptDetectsTampering(t *testing.T) {
	e := testEngine(t)
	p, err := e.Encrypt("the gift is a scarf")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	for bit := 0; bit < 8*len(p.Ciphertext)/2; bit++ {
		tampered := p
		tampered.Ciphertext = flipBit(t, p.Ciphertext, bit)
		if _, err := e.Decrypt(tampered); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("ciphertext bit %d: err = %v, want ErrIntegrity", bit, err)
		}
	}
	for bit := 0; bit < 8*len(p.IV)/2; bit++ {
		tampered := p
		tampered.IV = flipBit(t, p.IV, bit)
		if _, err := e.Decrypt(tampered); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("iv bit %d: err = %v, want ErrIntegrity", bit, err)
		}
	}
}

func TestDecryptRejectsMissingOrBadTag(t *testing.T) {
	e := testEngine(t)
	p, err := e.Encrypt("legacy")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	noTag := p
	noTag.Tag = ""
	if _, err := e.Decrypt(noTag); !errors.Is(err, ErrIntegrity) {
		t.Errorf("missing tag: err = %v, want ErrIntegrity", err)
	}

	badHex := p
	badHex.Tag = "not-hex"
	if _, err := e.Decrypt(badHex); !errors.Is(err, ErrIntegrity) {
		t.Errorf("malformed tag: err = %v, want ErrIntegrity", err)
	}

	other, err := NewEngine([]byte(strings.Repeat("k", KeySize)), []byte(strings.Repeat("n", KeySize)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := other.Decrypt(p); !errors.Is(err, ErrIntegrity) {
		t.Errorf("foreign mac key: err = %v, want ErrIntegrity", err)
	}
}

func TestDecryptStructuralFailureAfterValidTag(t *testing.T) {
	e := testEngine(t)
	iv := strings.Repeat("00", 16)

	cases := map[string]Payload{
		"non hex ciphertext": {Ciphertext: "zz", IV: iv},
		"partial block":      {Ciphertext: strings.Repeat("ab", 15), IV: iv},
		"short iv":           {Ciphertext: strings.Repeat("ab", 16), IV: "0011"},
		"empty ciphertext":   {Ciphertext: "", IV: iv},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			p.Tag = e.sign(p.IV, p.Ciphertext)
			if _, err := e.Decrypt(p); !errors.Is(err, ErrDecryption) {
				t.Fatalf("err = %v, want ErrDecryption", err)
			}
		})
	}
}

func TestNewEngineValidatesKeys(t *testing.T) {
	good := []byte(strings.Repeat("k", KeySize))
	cases := []struct {
		name     string
		enc, mac []byte
	}{
		{"short enc", []byte("short"), []byte(strings.Repeat("m", KeySize))},
		{"short mac", good, []byte("short")},
		{"same keys", good, good},
	}
	for _, tc := range cases {
		if _, err := NewEngine(tc.enc, tc.mac); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%s: err = %v, want ErrInvalidKey", tc.name, err)
		}
	}
}
