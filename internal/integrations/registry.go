// Package integrations manages connections to the issue tracker and HR
// platform: stored OAuth grants, the connect flow and lazily built clients.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/integrations/hrplatform"
	"github.com/ncecere/insights_dashboard/internal/integrations/issuetracker"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

var ErrIssueTrackerDisabled = apperr.Configuration("issue tracker integration is not configured")

// Registry builds upstream clients on first use and keeps them until Reset.
type Registry struct {
	cfg    config.IntegrationsConfig
	tokens TokenStore
	states *StateStore
	oauth  *issuetracker.OAuth

	mu           sync.Mutex
	issueTracker *issuetracker.Client
	hrPlatform   *hrplatform.Client
}

// NewRegistry wires the stores. tokens and states may be nil when the issue
// tracker is disabled.
func NewRegistry(cfg config.IntegrationsConfig, tokens TokenStore, states *StateStore) *Registry {
	r := &Registry{cfg: cfg, tokens: tokens, states: states}
	if cfg.IssueTracker.Enabled {
		r.oauth = issuetracker.NewOAuth(cfg.IssueTracker)
	}
	return r
}

func (r *Registry) issueTrackerReady() error {
	if r.oauth == nil || r.tokens == nil || r.states == nil {
		return ErrIssueTrackerDisabled
	}
	return nil
}

// IssueTracker returns a client authorized with the stored grant.
func (r *Registry) IssueTracker(ctx context.Context) (*issuetracker.Client, error) {
	if err := r.issueTrackerReady(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issueTracker != nil {
		return r.issueTracker, nil
	}
	tok, err := r.tokens.Load(ctx, issuetracker.Provider)
	if err != nil {
		return nil, err
	}
	// The cached client outlives this request.
	source := context.WithoutCancel(ctx)
	r.issueTracker = issuetracker.NewClient(r.cfg.IssueTracker.APIURL, r.oauth.HTTPClient(source, tok.OAuth2()))
	return r.issueTracker, nil
}

func (r *Registry) HRPlatform(_ context.Context) (*hrplatform.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hrPlatform != nil {
		return r.hrPlatform, nil
	}
	client, err := hrplatform.NewClient(r.cfg.HRPlatform)
	if err != nil {
		return nil, err
	}
	r.hrPlatform = client
	return client, nil
}

// Reset drops the cached client for provider so the next call rebuilds it.
func (r *Registry) Reset(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch provider {
	case issuetracker.Provider:
		r.issueTracker = nil
	case hrplatform.Provider:
		r.hrPlatform = nil
	}
}

// Connect starts the issue tracker OAuth flow for subject and returns the
// consent URL.
func (r *Registry) Connect(ctx context.Context, subject string) (string, error) {
	if err := r.issueTrackerReady(); err != nil {
		return "", err
	}
	state, pending, err := r.states.Begin(ctx, issuetracker.Provider, subject)
	if err != nil {
		return "", err
	}
	return r.oauth.AuthCodeURL(state, pending.Verifier), nil
}

// Callback completes the flow begun by Connect and stores the grant.
func (r *Registry) Callback(ctx context.Context, state, code string) error {
	if err := r.issueTrackerReady(); err != nil {
		return err
	}
	if code == "" {
		return apperr.Validation("code is required")
	}
	pending, err := r.states.Complete(ctx, issuetracker.Provider, state)
	if err != nil {
		return err
	}
	tok, err := r.oauth.Exchange(ctx, code, pending.Verifier)
	if err != nil {
		return apperr.ExternalAPI("issue tracker", err)
	}
	if err := r.tokens.Save(ctx, TokenFromOAuth2(issuetracker.Provider, pending.ConnectedBy, tok, r.oauth.Scopes())); err != nil {
		return err
	}
	r.Reset(issuetracker.Provider)
	logging.Ctx(ctx).Info().Str("provider", issuetracker.Provider).Str("connected_by", pending.ConnectedBy).Msg("integration connected")
	return nil
}

func (r *Registry) Disconnect(ctx context.Context) error {
	if err := r.issueTrackerReady(); err != nil {
		return err
	}
	if err := r.tokens.Delete(ctx, issuetracker.Provider); err != nil {
		return err
	}
	r.Reset(issuetracker.Provider)
	return nil
}

// Status describes a stored grant without exposing it.
type Status struct {
	Provider    string     `json:"provider"`
	Connected   bool       `json:"connected"`
	ConnectedBy string     `json:"connected_by,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Expired     bool       `json:"expired"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (r *Registry) Status(ctx context.Context) (Status, error) {
	if err := r.issueTrackerReady(); err != nil {
		return Status{}, err
	}
	tok, err := r.tokens.Load(ctx, issuetracker.Provider)
	if errors.Is(err, ErrNotConnected) {
		return Status{Provider: issuetracker.Provider}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("load token: %w", err)
	}
	updated := tok.UpdatedAt
	st := Status{
		Provider:    issuetracker.Provider,
		Connected:   true,
		ConnectedBy: tok.ConnectedBy,
		Scopes:      tok.Scopes,
		ExpiresAt:   tok.ExpiresAt,
		UpdatedAt:   &updated,
	}
	if tok.ExpiresAt != nil && tok.RefreshToken == "" && time.Now().After(*tok.ExpiresAt) {
		st.Expired = true
	}
	return st, nil
}
