package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/logging"
	"github.com/ncecere/insights_dashboard/internal/rbac"
)

// bootstrapStore is the subset of the user store needed to seed accounts.
type bootstrapStore interface {
	EnsureOrganization(ctx context.Context, name string) (string, error)
	UpsertUser(ctx context.Context, email, name, passwordHash string) (auth.User, error)
	SetMembership(ctx context.Context, userID, organizationID string, role rbac.Role) error
}

// ensureBootstrap creates the configured organizations and users. It is
// idempotent; reruns refresh names, passwords and roles.
func ensureBootstrap(ctx context.Context, store bootstrapStore, bootstrap config.BootstrapConfig) error {
	orgIDs := make(map[string]string)
	ensureOrg := func(name string) (string, error) {
		if id, ok := orgIDs[name]; ok {
			return id, nil
		}
		id, err := store.EnsureOrganization(ctx, name)
		if err != nil {
			return "", fmt.Errorf("bootstrap organization %q: %w", name, err)
		}
		orgIDs[name] = id
		return id, nil
	}

	for _, org := range bootstrap.Organizations {
		name := strings.TrimSpace(org.Name)
		if name == "" {
			continue
		}
		if _, err := ensureOrg(name); err != nil {
			return err
		}
	}

	for _, u := range bootstrap.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email == "" {
			continue
		}
		var hash string
		if pw := strings.TrimSpace(u.Password); pw != "" {
			var err error
			if hash, err = auth.HashPassword(pw); err != nil {
				return fmt.Errorf("bootstrap user %q password: %w", email, err)
			}
		}
		user, err := store.UpsertUser(ctx, email, strings.TrimSpace(u.Name), hash)
		if err != nil {
			return fmt.Errorf("bootstrap user %q: %w", email, err)
		}

		orgName := strings.TrimSpace(u.Organization)
		if orgName == "" {
			continue
		}
		role, ok := rbac.ParseRole(u.Role)
		if !ok {
			return fmt.Errorf("bootstrap user %q role %q invalid", email, u.Role)
		}
		orgID, err := ensureOrg(orgName)
		if err != nil {
			return err
		}
		if err := store.SetMembership(ctx, user.ID, orgID, role); err != nil {
			return fmt.Errorf("bootstrap user %q membership: %w", email, err)
		}
		logging.Info().Str("email", email).Str("organization", orgName).Str("role", string(role)).Msg("bootstrap user ensured")
	}
	return nil
}
