// Package apikeys issues, validates and revokes long-lived API keys.
//
// Only the SHA-256 digest of a key is stored. The plaintext secret is
// returned once from Issue and never again.
package apikeys

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrDuplicateDigest = errors.New("api key digest already exists")

// Record is a stored API key. It never contains the plaintext secret.
type Record struct {
	ID           uuid.UUID      `json:"id"`
	Owner        string         `json:"owner"`
	SecretDigest string         `json:"secret_digest"`
	Label        *string        `json:"label"`
	CreatedAt    time.Time      `json:"created_at"`
	LastUsedAt   *time.Time     `json:"last_used_at"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	Revoked      bool           `json:"revoked"`
	RevokedAt    *time.Time     `json:"revoked_at"`
	Metadata     map[string]any `json:"metadata"`
}

// Active reports whether the key would currently pass validation.
func (r Record) Active(now time.Time) bool {
	if r.Revoked {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// NewRecord is the insert payload for a freshly issued key.
type NewRecord struct {
	Owner        string
	SecretDigest string
	Label        *string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	Metadata     map[string]any
}

// ValidationResult is the outcome of an atomic validate-and-touch.
type ValidationResult struct {
	Owner string
	Valid bool
}

// Store persists API keys. ValidateAndTouch must check the key and stamp
// last_used_at as one atomic operation; Revoke must only affect a key that
// matches both id and owner and is not yet revoked.
type Store interface {
	Insert(ctx context.Context, rec NewRecord) (Record, error)
	ValidateAndTouch(ctx context.Context, digest string, now time.Time) (ValidationResult, error)
	Revoke(ctx context.Context, id uuid.UUID, owner string, now time.Time) (bool, error)
	ListByOwner(ctx context.Context, owner string) ([]Record, error)
	DeleteByOwner(ctx context.Context, owner string) (int64, error)
}
