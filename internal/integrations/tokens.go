package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/oauth2"

	"github.com/ncecere/insights_dashboard/internal/apperr"
)

// ErrNotConnected is returned when a provider has no stored token.
var ErrNotConnected = apperr.New(apperr.KindNotFound, "integration_not_connected", "integration is not connected")

// Token is a stored OAuth grant for one provider.
type Token struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresAt    *time.Time
	ConnectedBy  string
	UpdatedAt    time.Time
}

// OAuth2 converts the stored grant for use with an oauth2.Config.
func (t Token) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if t.ExpiresAt != nil {
		tok.Expiry = *t.ExpiresAt
	}
	return tok
}

// TokenFromOAuth2 captures a fresh grant.
func TokenFromOAuth2(provider, connectedBy string, tok *oauth2.Token, scopes []string) Token {
	out := Token{
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Scopes:       scopes,
		ConnectedBy:  connectedBy,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		out.ExpiresAt = &exp
	}
	return out
}

type TokenStore interface {
	Save(ctx context.Context, tok Token) error
	Load(ctx context.Context, provider string) (Token, error)
	Delete(ctx context.Context, provider string) error
}

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTokenStore keeps one sealed grant per provider.
type PostgresTokenStore struct {
	db     DBTX
	sealer *Sealer
}

func NewPostgresTokenStore(db DBTX, sealer *Sealer) *PostgresTokenStore {
	return &PostgresTokenStore{db: db, sealer: sealer}
}

func (s *PostgresTokenStore) Save(ctx context.Context, tok Token) error {
	access, err := s.sealer.Seal([]byte(tok.AccessToken))
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	var refresh []byte
	if tok.RefreshToken != "" {
		if refresh, err = s.sealer.Seal([]byte(tok.RefreshToken)); err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
	}
	scopes := tok.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO integration_tokens (provider, access_token, refresh_token, token_type, scopes, expires_at, connected_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (provider) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    token_type = EXCLUDED.token_type,
    scopes = EXCLUDED.scopes,
    expires_at = EXCLUDED.expires_at,
    connected_by = EXCLUDED.connected_by,
    updated_at = now()`,
		tok.Provider, access, refresh, tokenType, scopes, tok.ExpiresAt, tok.ConnectedBy)
	if err != nil {
		return fmt.Errorf("save integration token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) Load(ctx context.Context, provider string) (Token, error) {
	var (
		tok            = Token{Provider: provider}
		access, refresh []byte
	)
	err := s.db.QueryRow(ctx, `
SELECT access_token, refresh_token, token_type, scopes, expires_at, connected_by, updated_at
FROM integration_tokens WHERE provider = $1`, provider).
		Scan(&access, &refresh, &tok.TokenType, &tok.Scopes, &tok.ExpiresAt, &tok.ConnectedBy, &tok.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrNotConnected
	}
	if err != nil {
		return Token{}, fmt.Errorf("load integration token: %w", err)
	}
	plain, err := s.sealer.Open(access)
	if err != nil {
		return Token{}, err
	}
	tok.AccessToken = string(plain)
	if len(refresh) > 0 {
		if plain, err = s.sealer.Open(refresh); err != nil {
			return Token{}, err
		}
		tok.RefreshToken = string(plain)
	}
	return tok, nil
}

func (s *PostgresTokenStore) Delete(ctx context.Context, provider string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM integration_tokens WHERE provider = $1`, provider); err != nil {
		return fmt.Errorf("delete integration token: %w", err)
	}
	return nil
}
