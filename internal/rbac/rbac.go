package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncecere/insights_dashboard/internal/apperr"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

type RoleRank int

var roleOrder = map[Role]RoleRank{
	RoleOwner:  4,
	RoleAdmin:  3,
	RoleMember: 2,
	RoleViewer: 1,
}

// ParseRole converts a case-insensitive string to a Role.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleOrder[role]; !ok {
		return "", false
	}
	return role, true
}

// AtLeast returns true if current role is >= required role.
func AtLeast(current, required Role) bool {
	return roleOrder[current] >= roleOrder[required] && roleOrder[current] > 0
}

// Membership is one organization role held by a subject.
type Membership struct {
	OrganizationID   string
	OrganizationName string
	Role             Role
}

// MembershipSource resolves the memberships of a subject.
type MembershipSource interface {
	Memberships(ctx context.Context, subjectID string) ([]Membership, error)
}

var ErrForbidden = apperr.Authorization("insufficient role")

// Gate checks organization roles on every call. Memberships are not cached,
// so a demotion takes effect on the next request.
type Gate struct {
	source MembershipSource
}

func NewGate(source MembershipSource) *Gate {
	return &Gate{source: source}
}

// Require returns the first membership holding at least the required role.
func (g *Gate) Require(ctx context.Context, subjectID string, required Role) (Membership, error) {
	if strings.TrimSpace(subjectID) == "" {
		return Membership{}, ErrForbidden
	}
	memberships, err := g.source.Memberships(ctx, subjectID)
	if err != nil {
		return Membership{}, fmt.Errorf("load memberships: %w", err)
	}
	for _, m := range memberships {
		if AtLeast(m.Role, required) {
			return m, nil
		}
	}
	return Membership{}, ErrForbidden
}

// RequireAdmin passes when any membership is admin or owner.
func (g *Gate) RequireAdmin(ctx context.Context, subjectID string) error {
	_, err := g.Require(ctx, subjectID, RoleAdmin)
	return err
}
