package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ncecere/insights_dashboard/internal/rbac"
)

// DBTX is the subset of pgxpool.Pool used by PostgresUserStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresUserStore reads users, organizations and memberships.
type PostgresUserStore struct {
	db DBTX
}

func NewPostgresUserStore(db DBTX) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, email, name, password_hash, created_at, last_login_at`

func (s *PostgresUserStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresUserStore) UserByID(ctx context.Context, id string) (User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uid)
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	hash := pgtype.Text{String: passwordHash, Valid: passwordHash != ""}
	return s.queryUser(ctx, `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns, email, name, hash)
}

// UpsertUser creates the user or refreshes its name and password hash.
func (s *PostgresUserStore) UpsertUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	hash := pgtype.Text{String: passwordHash, Valid: passwordHash != ""}
	return s.queryUser(ctx, `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		   SET name = EXCLUDED.name,
		       password_hash = COALESCE(EXCLUDED.password_hash, users.password_hash)
		RETURNING `+userColumns, email, name, hash)
}

func (s *PostgresUserStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	if _, err := s.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, uid, at); err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

// Memberships returns the subject's organization roles. Subjects that are
// not user ids (API key owners, for instance) have none.
func (s *PostgresUserStore) Memberships(ctx context.Context, userID string) ([]rbac.Membership, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT o.id, o.name, m.role::text
		  FROM memberships m
		  JOIN organizations o ON o.id = m.organization_id
		 WHERE m.user_id = $1
		 ORDER BY o.name`, uid)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []rbac.Membership
	for rows.Next() {
		var (
			orgID uuid.UUID
			m     rbac.Membership
			role  string
		)
		if err := rows.Scan(&orgID, &m.OrganizationName, &role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.OrganizationID = orgID.String()
		m.Role = rbac.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// EnsureOrganization returns the id of the named organization, creating it if needed.
func (s *PostgresUserStore) EnsureOrganization(ctx context.Context, name string) (string, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
		INSERT INTO organizations (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ensure organization: %w", err)
	}
	return id.String(), nil
}

// SetMembership grants role to the user in the organization.
func (s *PostgresUserStore) SetMembership(ctx context.Context, userID, organizationID string, role rbac.Role) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memberships (user_id, organization_id, role)
		VALUES ($1, $2, $3::membership_role)
		ON CONFLICT (user_id, organization_id) DO UPDATE SET role = EXCLUDED.role`,
		userID, organizationID, string(role))
	if err != nil {
		return fmt.Errorf("set membership: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) queryUser(ctx context.Context, sql string, args ...any) (User, error) {
	var (
		u    User
		id   uuid.UUID
		hash pgtype.Text
	)
	err := s.db.QueryRow(ctx, sql, args...).Scan(&id, &u.Email, &u.Name, &hash, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	u.ID = id.String()
	u.PasswordHash = hash.String
	return u, nil
}
