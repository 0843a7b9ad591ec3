package apikeys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const recordColumns = `id, owner, secret_digest, label, created_at, last_used_at, expires_at, revoked, revoked_at, metadata`

// DBTX is the subset of pgxpool.Pool used by the store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps keys in the api_keys table.
type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, rec NewRecord) (Record, error) {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO api_keys (owner, secret_digest, label, created_at, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+recordColumns,
		rec.Owner, rec.SecretDigest, rec.Label, rec.CreatedAt, rec.ExpiresAt, metadata,
	)
	out, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrDuplicateDigest
		}
		return Record{}, fmt.Errorf("insert api key: %w", err)
	}
	return out, nil
}

// ValidateAndTouch delegates to the validate_api_key SQL function, which
// performs the lookup and the last_used_at update in one statement.
func (s *PostgresStore) ValidateAndTouch(ctx context.Context, digest string, now time.Time) (ValidationResult, error) {
	var (
		owner *string
		valid bool
	)
	err := s.db.QueryRow(ctx, `SELECT owner, is_valid FROM validate_api_key($1, $2)`, digest, now).Scan(&owner, &valid)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("validate api key: %w", err)
	}
	if !valid || owner == nil {
		return ValidationResult{}, nil
	}
	return ValidationResult{Owner: *owner, Valid: true}, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id uuid.UUID, owner string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE api_keys
		   SET revoked = true, revoked_at = $3
		 WHERE id = $1 AND owner = $2 AND NOT revoked`,
		id, owner, now,
	)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+` FROM api_keys WHERE owner = $1 ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) DeleteByOwner(ctx context.Context, owner string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM api_keys WHERE owner = $1`, owner)
	if err != nil {
		return 0, fmt.Errorf("delete api keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.Owner,
		&rec.SecretDigest,
		&rec.Label,
		&rec.CreatedAt,
		&rec.LastUsedAt,
		&rec.ExpiresAt,
		&rec.Revoked,
		&rec.RevokedAt,
		&rec.Metadata,
	)
	if err != nil {
		return Record{}, err
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return rec, nil
}
