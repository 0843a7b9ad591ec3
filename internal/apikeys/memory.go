package apikeys

import (
	"bytes"
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for development and tests. A single
// mutex gives it the same atomicity as the Postgres statements.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*Record
	byDigest map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[uuid.UUID]*Record),
		byDigest: make(map[string]uuid.UUID),
	}
}

func (m *MemoryStore) Insert(_ context.Context, rec NewRecord) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byDigest[rec.SecretDigest]; exists {
		return Record{}, ErrDuplicateDigest
	}
	metadata := map[string]any{}
	maps.Copy(metadata, rec.Metadata)
	stored := &Record{
		ID:           uuid.New(),
		Owner:        rec.Owner,
		SecretDigest: rec.SecretDigest,
		Label:        cloneString(rec.Label),
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    cloneTime(rec.ExpiresAt),
		Metadata:     metadata,
	}
	m.byID[stored.ID] = stored
	m.byDigest[stored.SecretDigest] = stored.ID
	return copyRecord(stored), nil
}

func (m *MemoryStore) ValidateAndTouch(_ context.Context, digest string, now time.Time) (ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byDigest[digest]
	if !ok {
		return ValidationResult{}, nil
	}
	rec := m.byID[id]
	if !rec.Active(now) {
		return ValidationResult{}, nil
	}
	rec.LastUsedAt = &now
	return ValidationResult{Owner: rec.Owner, Valid: true}, nil
}

func (m *MemoryStore) Revoke(_ context.Context, id uuid.UUID, owner string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok || rec.Owner != owner || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	rec.RevokedAt = &now
	return true, nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, owner string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Record{}
	for _, rec := range m.byID {
		if rec.Owner == owner {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (m *MemoryStore) DeleteByOwner(_ context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.byID {
		if rec.Owner == owner {
			delete(m.byDigest, rec.SecretDigest)
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func copyRecord(r *Record) Record {
	out := *r
	out.Label = cloneString(r.Label)
	out.LastUsedAt = cloneTime(r.LastUsedAt)
	out.ExpiresAt = cloneTime(r.ExpiresAt)
	out.RevokedAt = cloneTime(r.RevokedAt)
	out.Metadata = maps.Clone(r.Metadata)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
