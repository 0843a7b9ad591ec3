// Package cache holds small Redis-backed stores keyed by opaque ids.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionDenylist remembers logged-out session ids until they expire.
type SessionDenylist struct {
	client *redis.Client
}

func NewSessionDenylist(client *redis.Client) *SessionDenylist {
	return &SessionDenylist{client: client}
}

func (d *SessionDenylist) Deny(ctx context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" || ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.key(sessionID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("deny session: %w", err)
	}
	return nil
}

func (d *SessionDenylist) Denied(ctx context.Context, sessionID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

func (d *SessionDenylist) key(id string) string { return "session:denied:" + id }

// ErrNotFound is returned by OneTimeStore.Take for unknown or expired keys.
var ErrNotFound = errors.New("cache entry not found")

// OneTimeStore keeps short-lived values that can be read exactly once.
// Used for OAuth state, nonces and PKCE verifiers.
type OneTimeStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewOneTimeStore(client *redis.Client, prefix string, ttl time.Duration) *OneTimeStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OneTimeStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *OneTimeStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("cache key required")
	}
	if err := s.client.Set(ctx, s.prefixed(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", s.prefix, err)
	}
	return nil
}

// Take returns and deletes the value in one GETDEL round trip.
func (s *OneTimeStore) Take(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	data, err := s.client.GetDel(ctx, s.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take %s: %w", s.prefix, err)
	}
	return data, nil
}

func (s *OneTimeStore) prefixed(key string) string {
	return s.prefix + ":" + key
}
