package integrations

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var errSealedTooShort = errors.New("sealed payload too short")

// Sealer encrypts stored OAuth tokens with AES-GCM. Output is nonce||ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer takes a base64 key of 16, 24 or 32 bytes.
func NewSealer(rawKey string) (*Sealer, error) {
	trimmed := strings.TrimSpace(rawKey)
	if trimmed == "" {
		return nil, errors.New("integrations.encryption_key is required")
	}
	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("integrations.encryption_key must be base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, errors.New("integrations.encryption_key must be 16/24/32 bytes after decoding")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, errSealedTooShort
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed token: %w", err)
	}
	return plain, nil
}
