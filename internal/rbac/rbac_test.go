package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/apperr"
)

type stubSource struct {
	memberships map[string][]Membership
	err         error
	calls       int
}

func (s *stubSource) Memberships(_ context.Context, subjectID string) ([]Membership, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.memberships[subjectID], nil
}

func TestRequireAdmin(t *testing.T) {
	src := &stubSource{memberships: map[string][]Membership{
		"owner":  {{OrganizationID: "o1", Role: RoleOwner}},
		"admin":  {{OrganizationID: "o1", Role: RoleViewer}, {OrganizationID: "o2", Role: RoleAdmin}},
		"member": {{OrganizationID: "o1", Role: RoleMember}},
	}}
	gate := NewGate(src)
	ctx := context.Background()

	require.NoError(t, gate.RequireAdmin(ctx, "owner"))
	require.NoError(t, gate.RequireAdmin(ctx, "admin"))
	require.ErrorIs(t, gate.RequireAdmin(ctx, "member"), apperr.ErrAuthorization)
	require.ErrorIs(t, gate.RequireAdmin(ctx, "nobody"), apperr.ErrAuthorization)
	require.ErrorIs(t, gate.RequireAdmin(ctx, ""), apperr.ErrAuthorization)
	require.Equal(t, 4, src.calls)
}

func TestRequireAdminReflectsRoleChanges(t *testing.T) {
	src := &stubSource{memberships: map[string][]Membership{
		"u": {{OrganizationID: "o1", Role: RoleAdmin}},
	}}
	gate := NewGate(src)
	require.NoError(t, gate.RequireAdmin(context.Background(), "u"))

	src.memberships["u"] = []Membership{{OrganizationID: "o1", Role: RoleMember}}
	require.ErrorIs(t, gate.RequireAdmin(context.Background(), "u"), ErrForbidden)
}

func TestRequireAdminLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	gate := NewGate(&stubSource{err: boom})
	err := gate.RequireAdmin(context.Background(), "u")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, apperr.ErrAuthorization)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Admin ")
	require.True(t, ok)
	require.Equal(t, RoleAdmin, role)
	_, ok = ParseRole("superuser")
	require.False(t, ok)
	require.True(t, AtLeast(RoleOwner, RoleAdmin))
	require.False(t, AtLeast(RoleViewer, RoleMember))
	require.False(t, AtLeast(Role(""), Role("")))
}
