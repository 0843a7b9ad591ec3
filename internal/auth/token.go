package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidSession = errors.New("invalid session token")

// Session is a signed session token and its expiry metadata.
type Session struct {
	Token     string
	ID        string
	Subject   string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration, issuer string) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token secret required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be > 0")
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

func (tm *TokenManager) TTL() time.Duration { return tm.ttl }

// Issue signs a session for the subject.
func (tm *TokenManager) Issue(subject, email string) (Session, error) {
	if subject == "" {
		return Session{}, errors.New("session subject required")
	}
	now := tm.now()
	exp := now.Add(tm.ttl)
	id := uuid.NewString()

	claims := sessionClaims{
		Email: email,
		Type:  "session",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        id,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ID: id, Subject: subject, ExpiresAt: exp}, nil
}

// Parse verifies signature, issuer, expiry and token type.
func (tm *TokenManager) Parse(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidSession
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil || !parsed.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Type != "session" || claims.Subject == "" || claims.ID == "" {
		return Session{}, ErrInvalidSession
	}
	return Session{
		Token:     token,
		ID:        claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// GenerateState returns a random URL-safe string for OAuth state, nonce and PKCE values.
func GenerateState(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
