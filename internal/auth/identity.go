package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/rbac"
)

const (
	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = apperr.Authentication("invalid_credentials", "invalid email or password")
	ErrLocalDisabled      = apperr.New(apperr.KindValidation, "login_method_disabled", "local authentication disabled")
	ErrOIDCDisabled       = apperr.New(apperr.KindValidation, "login_method_disabled", "oidc authentication disabled")
)

// User is a dashboard account that can hold a session.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// UserStore persists accounts and their organization memberships.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Memberships(ctx context.Context, userID string) ([]rbac.Membership, error)
}

// SessionDenylist records logged-out session ids until they would have expired.
type SessionDenylist interface {
	Deny(ctx context.Context, sessionID string, ttl time.Duration) error
	Denied(ctx context.Context, sessionID string) (bool, error)
}

type IdentityOptions struct {
	LocalEnabled bool
	OIDC         *OIDCProvider
}

// Identity is the interactive login provider: local password login, OIDC
// login, signed session tokens and membership lookups.
type Identity struct {
	users    UserStore
	tokens   *TokenManager
	denylist SessionDenylist
	oidc     *OIDCProvider
	local    bool
	now      func() time.Time
	verify   func(password, encoded string) (bool, error)
}

// decoyHash is checked when no real hash exists so unknown accounts take as
// long to reject as wrong passwords.
var decoyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("decoy-password")
	if err != nil {
		panic(err)
	}
	return hash
})

func NewIdentity(users UserStore, tokens *TokenManager, denylist SessionDenylist, opts IdentityOptions) *Identity {
	return &Identity{
		users:    users,
		tokens:   tokens,
		denylist: denylist,
		oidc:     opts.OIDC,
		local:    opts.LocalEnabled,
		now:      time.Now,
		verify:   VerifyPassword,
	}
}

func (i *Identity) AllowedMethods() []string {
	methods := []string{}
	if i.local {
		methods = append(methods, ProviderLocal)
	}
	if i.oidc != nil {
		methods = append(methods, ProviderOIDC)
	}
	return methods
}

func (i *Identity) SessionTTL() time.Duration { return i.tokens.TTL() }

// LoginLocal verifies an email and password and issues a session.
func (i *Identity) LoginLocal(ctx context.Context, email, password string) (Session, User, error) {
	if !i.local {
		return Session{}, User{}, ErrLocalDisabled
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, User{}, ErrInvalidCredentials
	}

	user, err := i.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = i.verify(password, decoyHash())
			return Session{}, User{}, ErrInvalidCredentials
		}
		return Session{}, User{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.PasswordHash == "" {
		_, _ = i.verify(password, decoyHash())
		return Session{}, User{}, ErrInvalidCredentials
	}
	match, err := i.verify(password, user.PasswordHash)
	if err != nil {
		return Session{}, User{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return Session{}, User{}, ErrInvalidCredentials
	}
	return i.startSession(ctx, user)
}

// OIDCAuthURL returns the provider redirect for a login attempt.
func (i *Identity) OIDCAuthURL(state, nonce string) (string, error) {
	if i.oidc == nil {
		return "", ErrOIDCDisabled
	}
	return i.oidc.AuthCodeURL(state, nonce), nil
}

// CompleteOIDC exchanges the authorization code, provisioning the user on first login.
func (i *Identity) CompleteOIDC(ctx context.Context, code, expectedNonce string) (Session, User, error) {
	if i.oidc == nil {
		return Session{}, User{}, ErrOIDCDisabled
	}
	identity, err := i.oidc.Exchange(ctx, code, expectedNonce)
	if err != nil {
		return Session{}, User{}, apperr.Wrap(apperr.KindAuthentication, "oidc_failed", "oidc login failed", err)
	}

	email := strings.ToLower(identity.Email)
	user, err := i.users.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		user, err = i.users.CreateUser(ctx, email, identity.DisplayName(), "")
	}
	if err != nil {
		return Session{}, User{}, fmt.Errorf("resolve oidc user: %w", err)
	}
	return i.startSession(ctx, user)
}

func (i *Identity) startSession(ctx context.Context, user User) (Session, User, error) {
	now := i.now()
	if err := i.users.TouchLogin(ctx, user.ID, now); err != nil {
		return Session{}, User{}, fmt.Errorf("update last login: %w", err)
	}
	user.LastLoginAt = &now
	sess, err := i.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return Session{}, User{}, err
	}
	return sess, user, nil
}

// Session verifies a session token and checks it has not been logged out.
func (i *Identity) Session(ctx context.Context, token string) (Session, error) {
	sess, err := i.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	if i.denylist != nil {
		denied, err := i.denylist.Denied(ctx, sess.ID)
		if err != nil {
			return Session{}, fmt.Errorf("check session denylist: %w", err)
		}
		if denied {
			return Session{}, ErrInvalidSession
		}
	}
	return sess, nil
}

// Logout denylists the session for the remainder of its lifetime.
func (i *Identity) Logout(ctx context.Context, token string) error {
	sess, err := i.tokens.Parse(token)
	if err != nil {
		return nil
	}
	ttl := sess.ExpiresAt.Sub(i.now())
	if ttl <= 0 || i.denylist == nil {
		return nil
	}
	if err := i.denylist.Deny(ctx, sess.ID, ttl); err != nil {
		return fmt.Errorf("deny session: %w", err)
	}
	return nil
}

func (i *Identity) User(ctx context.Context, id string) (User, error) {
	user, err := i.users.UserByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, apperr.NotFound("user not found")
	}
	return user, err
}

// Memberships implements rbac.MembershipSource.
func (i *Identity) Memberships(ctx context.Context, subjectID string) ([]rbac.Membership, error) {
	return i.users.Memberships(ctx, subjectID)
}
