package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the required AES-256 key length.
const KeySize = 32

// sealedPrefix marks values written by an enabled Cipher.
const sealedPrefix = "enc:v1:"

var (
	// ErrSealedValue is returned when a sealed value is read without a key.
	ErrSealedValue = errors.New("stored value is encrypted but no encryption key is configured")

	// ErrPlainValue is returned when an enabled Cipher reads a value that
	// was stored without encryption.
	ErrPlainValue = errors.New("stored value is not encrypted but an encryption key is configured")
)

// Cipher seals stored values with AES-256-GCM. A Cipher created without a
// key passes values through unchanged.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher. An empty key disables encryption.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return &Cipher{}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d bytes", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Enabled reports whether values are sealed.
func (c *Cipher) Enabled() bool {
	return c.aead != nil
}

// Seal returns prefix || base64(nonce || ciphertext || tag).
func (c *Cipher) Seal(plaintext string) (string, error) {
	if !c.Enabled() || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. With a key configured only sealed values are
// accepted; "" stays "".
func (c *Cipher) Open(value string) (string, error) {
	sealed := strings.HasPrefix(value, sealedPrefix)
	switch {
	case value == "":
		return "", nil
	case !c.Enabled() && !sealed:
		return value, nil
	case !c.Enabled():
		return "", ErrSealedValue
	case !sealed:
		return "", ErrPlainValue
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a random key suitable for NewCipher.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64 key from configuration. "" means no key.
func KeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d bytes", KeySize, len(key))
	}
	return key, nil
}
