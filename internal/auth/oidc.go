package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ncecere/insights_dashboard/internal/config"
)

type OIDCIdentity struct {
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	PreferredName string
}

// DisplayName picks the friendliest available name.
func (i OIDCIdentity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.PreferredName != "":
		return i.PreferredName
	default:
		return i.Email
	}
}

type OIDCProvider struct {
	cfg            config.OIDCConfig
	provider       *oidc.Provider
	oauth2Config   *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	allowedDomains map[string]struct{}
}

func NewOIDCProvider(ctx context.Context, cfg config.OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed[d] = struct{}{}
		}
	}

	return &OIDCProvider{
		cfg:      cfg,
		provider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier:       provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		allowedDomains: allowed,
	}, nil
}

func (p *OIDCProvider) AuthCodeURL(state string, nonce string) string {
	opts := []oauth2.AuthCodeOption{}
	if nonce != "" {
		opts = append(opts, oidc.Nonce(nonce))
	}
	return p.oauth2Config.AuthCodeURL(state, opts...)
}

func (p *OIDCProvider) Exchange(ctx context.Context, code string, expectedNonce string) (*OIDCIdentity, error) {
	timeout := p.cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	exchangeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	oauth2Token, err := p.oauth2Config.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("oidc: missing id_token in token response")
	}
	idToken, err := p.verifier.Verify(exchangeCtx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return nil, errors.New("oidc: nonce mismatch")
	}

	var claims struct {
		Email             string `json:"email"`
		EmailVerified     bool   `json:"email_verified"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id token claims: %w", err)
	}
	identity := &OIDCIdentity{
		Issuer:        idToken.Issuer,
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		PreferredName: claims.PreferredUsername,
	}

	if identity.Email == "" {
		if err := p.populateFromUserInfo(exchangeCtx, oauth2Token, identity); err != nil {
			return nil, err
		}
	}
	if err := p.checkDomain(identity.Email); err != nil {
		return nil, err
	}
	return identity, nil
}

func (p *OIDCProvider) populateFromUserInfo(ctx context.Context, token *oauth2.Token, identity *OIDCIdentity) error {
	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return fmt.Errorf("fetch userinfo: %w", err)
	}
	if userInfo.Email == "" {
		return errors.New("oidc: email not present in claims")
	}
	identity.Email = userInfo.Email
	identity.EmailVerified = userInfo.EmailVerified
	return nil
}

func (p *OIDCProvider) checkDomain(email string) error {
	if len(p.allowedDomains) == 0 {
		return nil
	}
	domain, err := emailDomain(email)
	if err != nil {
		return err
	}
	if _, ok := p.allowedDomains[domain]; !ok {
		return fmt.Errorf("email domain %s not permitted", domain)
	}
	return nil
}

func emailDomain(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "", fmt.Errorf("invalid email address %q", email)
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if domain == "" {
		return "", fmt.Errorf("invalid email domain %q", email)
	}
	return domain, nil
}
