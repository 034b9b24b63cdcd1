package principal

import (
	"context"
	"testing"

	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	roles       map[string][]string
	general     map[string][]GeneralClaim
	memberships map[string][]domain.CourseMember
}

func (f fakeStore) ListUserRoles(ctx context.Context, userID string) ([]string, error) {
	return f.roles[userID], nil
}

func (f fakeStore) ListGeneralClaims(ctx context.Context, roles []string) ([]GeneralClaim, error) {
	var out []GeneralClaim
	for _, r := range roles {
		out = append(out, f.general[r]...)
	}
	return out, nil
}

func (f fakeStore) ListCourseMemberships(ctx context.Context, userID string) ([]domain.CourseMember, error) {
	return f.memberships[userID], nil
}

func TestBuildPrincipalAdminFromGlobalRole(t *testing.T) {
	store := fakeStore{
		roles: map[string][]string{"u1": {"_admin"}},
	}

	p, err := NewBuilder(store).Build(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, p.IsAdmin)
}

func TestBuildPrincipalCourseRoleHierarchy(t *testing.T) {
	store := fakeStore{
		memberships: map[string][]domain.CourseMember{
			"u1": {{CourseID: "c1", UserID: "u1", CourseRoleID: domain.CourseRoleLecturer}},
		},
	}

	p, err := NewBuilder(store).Build(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, p.IsAdmin)

	require.True(t, p.Claims.CourseAtLeast("c1", domain.CourseRoleStudent))
	require.True(t, p.Claims.CourseAtLeast("c1", domain.CourseRoleTutor))
	require.True(t, p.Claims.CourseAtLeast("c1", domain.CourseRoleLecturer))
	require.False(t, p.Claims.CourseAtLeast("c1", domain.CourseRoleMaintainer))
	require.False(t, p.Claims.CourseAtLeast("c2", domain.CourseRoleStudent))
}

func TestCourseIDsAtLeast(t *testing.T) {
	store := fakeStore{
		memberships: map[string][]domain.CourseMember{
			"u1": {
				{CourseID: "c1", UserID: "u1", CourseRoleID: domain.CourseRoleStudent},
				{CourseID: "c2", UserID: "u1", CourseRoleID: domain.CourseRoleLecturer},
			},
		},
	}

	p, err := NewBuilder(store).Build(context.Background(), "u1")
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"c1", "c2"}, p.Claims.CourseIDsAtLeast(domain.CourseRoleStudent))
	require.ElementsMatch(t, []string{"c2"}, p.Claims.CourseIDsAtLeast(domain.CourseRoleLecturer))
}

func TestCacheInvalidateRemovesEntry(t *testing.T) {
	store := fakeStore{roles: map[string][]string{"u1": {"_admin"}}}
	builder := NewBuilder(store)
	cache := NewCache(builder, 0) // zero TTL: Resolve still stores an entry for Invalidate to remove

	key := CredentialKey("sometoken")
	p1, err := cache.Resolve(context.Background(), key, "u1")
	require.NoError(t, err)
	require.True(t, p1.IsAdmin)

	cache.Invalidate(key)

	_, ok := cache.entries[key]
	require.False(t, ok)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	require.True(t, VerifyPassword(hash, "correct horse battery staple"))
	require.False(t, VerifyPassword(hash, "wrong password"))
}
