package encryption

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	encInfo = "secretsanta/chat/encryption"
	macInfo = "secretsanta/chat/hmac"
)

// Keys is the decoded key material for NewEngine.
type Keys struct {
	Encryption []byte
	HMAC       []byte
	// Weak is set when at least one key was stretched from a short secret.
	Weak bool
}

// ParseKeys decodes the configured secrets. Each secret is either 64 hex
// characters or exactly 32 raw bytes. Anything else is rejected unless
// allowWeak is set, in which case the secret is stretched with HKDF. That
// fallback is for local development only.
func ParseKeys(encSecret, macSecret string, allowWeak bool) (Keys, error) {
	enc, encWeak, err := parseKey(encSecret, encInfo, allowWeak)
	if err != nil {
		return Keys{}, fmt.Errorf("encryption key: %w", err)
	}
	mac, macWeak, err := parseKey(macSecret, macInfo, allowWeak)
	if err != nil {
		return Keys{}, fmt.Errorf("hmac key: %w", err)
	}
	return Keys{Encryption: enc, HMAC: mac, Weak: encWeak || macWeak}, nil
}

// NewEngineFromKeys is NewEngine over parsed Keys.
func NewEngineFromKeys(k Keys) (*Engine, error) {
	return NewEngine(k.Encryption, k.HMAC)
}

func parseKey(secret, info string, allowWeak bool) ([]byte, bool, error) {
	if len(secret) == 2*KeySize {
		if b, err := hex.DecodeString(secret); err == nil {
			return b, false, nil
		}
	}
	if len(secret) == KeySize {
		return []byte(secret), false, nil
	}
	if !allowWeak {
		return nil, false, fmt.Errorf("%w: need %d bytes or %d hex characters, got %d characters",
			ErrInvalidKey, KeySize, 2*KeySize, len(secret))
	}
	if secret == "" {
		return nil, false, fmt.Errorf("%w: empty secret", ErrInvalidKey)
	}

	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), out); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return out, true, nil
}
