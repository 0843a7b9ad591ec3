package apikeys

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

const maxLabelLength = 200

// ErrInvalidKey is returned for every validation failure so callers cannot
// tell a missing key from a revoked or expired one.
var ErrInvalidKey = apperr.Authentication("invalid_api_key", "invalid api key")

// Validation outcomes reported to the observer.
const (
	OutcomeValid     = "valid"
	OutcomeMalformed = "malformed"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// ValidationObserver receives one outcome per Validate call.
type ValidationObserver interface {
	RecordKeyValidation(outcome string)
}

type IssueOptions struct {
	Label     string
	ExpiresAt *time.Time
	Metadata  map[string]any
}

// Issued carries the only copy of the plaintext secret.
type Issued struct {
	Record Record `json:"record"`
	Secret string `json:"secret"`
}

type Options struct {
	// DefaultTTL applies when IssueOptions.ExpiresAt is nil. Zero means no expiry.
	DefaultTTL time.Duration
	Observer   ValidationObserver
}

type Service struct {
	store    Store
	codec    auth.KeyCodec
	ttl      time.Duration
	observer ValidationObserver
	now      func() time.Time
}

func NewService(store Store, codec auth.KeyCodec, opts Options) *Service {
	return &Service{
		store:    store,
		codec:    codec,
		ttl:      opts.DefaultTTL,
		observer: opts.Observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a key for owner and returns the plaintext once.
func (s *Service) Issue(ctx context.Context, owner string, opts IssueOptions) (Issued, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Issued{}, apperr.Validation("owner is required")
	}
	label := strings.TrimSpace(opts.Label)
	if len(label) > maxLabelLength {
		return Issued{}, apperr.Validation(fmt.Sprintf("label must be at most %d characters", maxLabelLength))
	}

	now := s.now()
	expiresAt := opts.ExpiresAt
	if expiresAt != nil {
		if !expiresAt.After(now) {
			return Issued{}, apperr.Validation("expires_at must be in the future")
		}
		utc := expiresAt.UTC()
		expiresAt = &utc
	} else if s.ttl > 0 {
		exp := now.Add(s.ttl)
		expiresAt = &exp
	}

	secret, err := s.codec.Generate()
	if err != nil {
		return Issued{}, err
	}
	rec := NewRecord{
		Owner:        owner,
		SecretDigest: s.codec.Digest(secret),
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		Metadata:     opts.Metadata,
	}
	if label != "" {
		rec.Label = &label
	}

	stored, err := s.store.Insert(ctx, rec)
	if err != nil {
		return Issued{}, fmt.Errorf("issue api key: %w", err)
	}
	logging.Ctx(ctx).Info().Str("key_id", stored.ID.String()).Str("owner", owner).Msg("api key issued")
	return Issued{Record: stored, Secret: secret}, nil
}

// Validate returns the owner of a live key and records the use.
func (s *Service) Validate(ctx context.Context, secret string) (string, error) {
	if secret == "" || !s.codec.WellFormed(secret) {
		s.observe(OutcomeMalformed)
		return "", ErrInvalidKey
	}
	result, err := s.store.ValidateAndTouch(ctx, s.codec.Digest(secret), s.now())
	if err != nil {
		s.observe(OutcomeError)
		logging.Ctx(ctx).Error().Err(err).Msg("api key validation failed")
		return "", ErrInvalidKey
	}
	if !result.Valid {
		s.observe(OutcomeRejected)
		return "", ErrInvalidKey
	}
	s.observe(OutcomeValid)
	return result.Owner, nil
}

// Revoke marks the key revoked when both id and owner match. Unknown ids,
// foreign keys and already revoked keys are silently ignored.
func (s *Service) Revoke(ctx context.Context, owner, keyID string) error {
	id, err := uuid.Parse(strings.TrimSpace(keyID))
	if err != nil {
		return nil
	}
	revoked, err := s.store.Revoke(ctx, id, owner, s.now())
	if err != nil {
		return err
	}
	if revoked {
		logging.Ctx(ctx).Info().Str("key_id", id.String()).Str("owner", owner).Msg("api key revoked")
	}
	return nil
}

// List returns the owner's keys ordered by creation time.
func (s *Service) List(ctx context.Context, owner string) ([]Record, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, apperr.Validation("owner is required")
	}
	return s.store.ListByOwner(ctx, owner)
}

// DeleteByOwner physically removes every key of owner.
func (s *Service) DeleteByOwner(ctx context.Context, owner string) (int64, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return 0, apperr.Validation("owner is required")
	}
	n, err := s.store.DeleteByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	logging.Ctx(ctx).Warn().Str("owner", owner).Int64("deleted", n).Msg("api keys deleted")
	return n, nil
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.RecordKeyValidation(outcome)
	}
}
