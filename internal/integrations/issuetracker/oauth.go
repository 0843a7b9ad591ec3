// Package issuetracker connects to the issue tracker over OAuth 2 with PKCE
// and reads issue counts from its GraphQL API.
package issuetracker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/ncecere/insights_dashboard/internal/config"
)

// Provider is the integration name used for stored tokens and routes.
const Provider = "issue-tracker"

type OAuth struct {
	cfg     *oauth2.Config
	timeout time.Duration
}

func NewOAuth(cfg config.IssueTrackerConfig) *OAuth {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		timeout: timeout,
	}
}

func (o *OAuth) Scopes() []string { return o.cfg.Scopes }

// AuthCodeURL returns the consent redirect carrying the S256 challenge for verifier.
func (o *OAuth) AuthCodeURL(state, verifier string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
}

func (o *OAuth) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: o.timeout})
	tok, err := o.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange issue tracker code: %w", err)
	}
	return tok, nil
}

// HTTPClient returns a client that attaches tok and refreshes it when it
// expires. Refreshes run under ctx, so it must live as long as the client.
func (o *OAuth) HTTPClient(ctx context.Context, tok *oauth2.Token) *http.Client {
	base := &http.Client{Timeout: o.timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := o.cfg.Client(ctx, tok)
	client.Timeout = o.timeout
	return client
}
