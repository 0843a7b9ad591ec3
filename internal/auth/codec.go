package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	DefaultKeyPrefix = "sk_analytics_"
	keySecretBytes   = 32
)

// encodedSecretLen is the length of 32 bytes in unpadded base64url.
var encodedSecretLen = base64.RawURLEncoding.EncodedLen(keySecretBytes)

// KeyCodec generates API key secrets and derives their stored digest.
type KeyCodec struct {
	prefix string
}

func NewKeyCodec(prefix string) KeyCodec {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultKeyPrefix
	}
	return KeyCodec{prefix: prefix}
}

func (c KeyCodec) Prefix() string { return c.prefix }

// KeyLength is the fixed length of every secret this codec produces.
func (c KeyCodec) KeyLength() int { return len(c.prefix) + encodedSecretLen }

// Generate returns a new plaintext secret.
func (c KeyCodec) Generate() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return c.prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest returns the lowercase hex SHA-256 of the secret.
func (c KeyCodec) Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// WellFormed reports whether secret has the expected prefix and length.
func (c KeyCodec) WellFormed(secret string) bool {
	return strings.HasPrefix(secret, c.prefix) && len(secret) == c.KeyLength()
}
