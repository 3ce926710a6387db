package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// KeySize is the required length of both the cipher key and the MAC key.
const KeySize = 32

var (
	// ErrIntegrity means the tag is missing or does not match. The payload was
	// not decrypted.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrDecryption means the tag verified but the payload could not be
	// decrypted (malformed hex, bad block length, bad padding, non UTF-8).
	ErrDecryption = errors.New("decryption failed")
	// ErrInvalidKey is returned by NewEngine for unusable key material.
	ErrInvalidKey = errors.New("invalid key")
)

// Payload is one encrypted field as persisted. The three values always travel
// together; a payload without its tag can never be decrypted.
type Payload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
}

// Engine encrypts with AES-256-CBC and authenticates with HMAC-SHA256
// (encrypt-then-MAC).
type Engine struct {
	block  cipher.Block
	macKey []byte
	random io.Reader
}

// NewEngine builds an engine from a 32 byte cipher key and an independent
// 32 byte MAC key.
func NewEngine(encKey, macKey []byte) (*Engine, error) {
	if len(encKey) != KeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(encKey))
	}
	if len(macKey) != KeySize {
		return nil, fmt.Errorf("%w: hmac key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(macKey))
	}
	if hmac.Equal(encKey, macKey) {
		return nil, fmt.Errorf("%w: encryption and hmac keys must differ", ErrInvalidKey)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	mk := make([]byte, KeySize)
	copy(mk, macKey)

	return &Engine{block: block, macKey: mk, random: rand.Reader}, nil
}

// Encrypt encrypts plaintext under a fresh random IV and tags the result.
func (e *Engine) Encrypt(plaintext string) (Payload, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return Payload{}, fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pad([]byte(plaintext))
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(e.block, iv).CryptBlocks(ct, padded)

	p := Payload{
		Ciphertext: hex.EncodeToString(ct),
		IV:         hex.EncodeToString(iv),
	}
	p.Tag = e.sign(p.IV, p.Ciphertext)
	return p, nil
}

// Verify checks the payload tag in constant time without decrypting.
func (e *Engine) Verify(p Payload) error {
	if p.Tag == "" {
		return fmt.Errorf("%w: missing tag", ErrIntegrity)
	}
	got, err := hex.DecodeString(p.Tag)
	if err != nil {
		return fmt.Errorf("%w: malformed tag", ErrIntegrity)
	}
	want, _ := hex.DecodeString(e.sign(p.IV, p.Ciphertext))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("%w: tag mismatch", ErrIntegrity)
	}
	return nil
}

// Decrypt verifies the tag and only then decrypts the payload.
func (e *Engine) Decrypt(p Payload) (string, error) {
	if err := e.Verify(p); err != nil {
		return "", err
	}

	iv, err := hex.DecodeString(p.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: malformed iv", ErrDecryption)
	}
	ct, err := hex.DecodeString(p.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryption)
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(e.block, iv).CryptBlocks(out, ct)

	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", ErrDecryption)
	}
	return string(plain), nil
}

// sign computes the hex HMAC over hex(iv) || hex(ciphertext).
func (e *Engine) sign(ivHex, ctHex string) string {
	mac := hmac.New(sha256.New, e.macKey)
	mac.Write([]byte(ivHex))
	mac.Write([]byte(ctHex))
	return hex.EncodeToString(mac.Sum(nil))
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
