package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/cache"
)

var ErrInvalidState = apperr.Authentication("invalid_oauth_state", "oauth state is invalid or expired")

// PendingAuth is what a connect request leaves behind for its callback.
type PendingAuth struct {
	Provider    string    `json:"provider"`
	Verifier    string    `json:"verifier"`
	ConnectedBy string    `json:"connected_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateStore holds PKCE verifiers keyed by OAuth state. Each state can be
// completed once.
type StateStore struct {
	store *cache.OneTimeStore
}

func NewStateStore(store *cache.OneTimeStore) *StateStore {
	return &StateStore{store: store}
}

// Begin mints a state and verifier for subject's connect attempt.
func (s *StateStore) Begin(ctx context.Context, provider, subject string) (state string, pending PendingAuth, err error) {
	state, err = auth.GenerateState(32)
	if err != nil {
		return "", PendingAuth{}, err
	}
	pending = PendingAuth{
		Provider:    provider,
		Verifier:    oauth2.GenerateVerifier(),
		ConnectedBy: subject,
		CreatedAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return "", PendingAuth{}, fmt.Errorf("encode oauth state: %w", err)
	}
	if err := s.store.Put(ctx, state, payload); err != nil {
		return "", PendingAuth{}, err
	}
	return state, pending, nil
}

// Complete consumes state. The provider must match the one that began it.
func (s *StateStore) Complete(ctx context.Context, provider, state string) (PendingAuth, error) {
	payload, err := s.store.Take(ctx, state)
	if errors.Is(err, cache.ErrNotFound) {
		return PendingAuth{}, ErrInvalidState
	}
	if err != nil {
		return PendingAuth{}, err
	}
	var pending PendingAuth
	if err := json.Unmarshal(payload, &pending); err != nil {
		return PendingAuth{}, ErrInvalidState
	}
	if pending.Provider != provider {
		return PendingAuth{}, ErrInvalidState
	}
	return pending, nil
}
