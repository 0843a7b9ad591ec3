package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/logging"
	"github.com/ncecere/insights_dashboard/internal/requestctx"
)

const bearerScheme = "bearer"

var (
	ErrInvalidAuthorizationHeader = apperr.Authentication("invalid_authorization_header", "authorization header must be 'Bearer <api key>'")
	ErrInvalidAPIKey              = apperr.Authentication("invalid_api_key", "invalid api key")
	ErrAuthenticationRequired     = apperr.Authentication("authentication_required", "authentication required")
)

// KeyValidator resolves an API key secret to its owner.
type KeyValidator interface {
	Validate(ctx context.Context, secret string) (string, error)
}

// SessionResolver resolves an interactive session token.
type SessionResolver interface {
	Session(ctx context.Context, token string) (Session, error)
}

// Credentials are the raw inputs a request may authenticate with.
type Credentials struct {
	Authorization string
	SessionToken  string
}

// RequestAuthenticator decides who is calling. A present Authorization header
// always selects the API key path and never falls back to the session.
type RequestAuthenticator struct {
	keys     KeyValidator
	sessions SessionResolver
}

func NewRequestAuthenticator(keys KeyValidator, sessions SessionResolver) *RequestAuthenticator {
	return &RequestAuthenticator{keys: keys, sessions: sessions}
}

func (a *RequestAuthenticator) Authenticate(ctx context.Context, creds Credentials) (requestctx.Subject, error) {
	if header := strings.TrimSpace(creds.Authorization); header != "" {
		token, ok := parseBearer(header)
		if !ok {
			return requestctx.Subject{}, ErrInvalidAuthorizationHeader
		}
		owner, err := a.keys.Validate(ctx, token)
		if err != nil {
			return requestctx.Subject{}, ErrInvalidAPIKey
		}
		return requestctx.Subject{ID: owner, Method: requestctx.MethodAPIKey}, nil
	}

	if creds.SessionToken == "" || a.sessions == nil {
		return requestctx.Subject{}, ErrAuthenticationRequired
	}
	sess, err := a.sessions.Session(ctx, creds.SessionToken)
	if err != nil {
		if !errors.Is(err, ErrInvalidSession) {
			logging.Ctx(ctx).Error().Err(err).Msg("session lookup failed")
		}
		return requestctx.Subject{}, ErrAuthenticationRequired
	}
	return requestctx.Subject{ID: sess.Subject, Method: requestctx.MethodSession, SessionID: sess.ID}, nil
}

func parseBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
