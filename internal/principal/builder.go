package principal

import (
	"context"
	"fmt"

	"github.com/computor-platform/computor-api/internal/domain"
)

// Store is the read-only slice of the persistence layer the builder needs:
// global roles, general role-claim grants, and course memberships for a
// user. Implemented by internal/store/postgres.Postgres.
type Store interface {
	ListUserRoles(ctx context.Context, userID string) ([]string, error)
	ListGeneralClaims(ctx context.Context, roles []string) ([]GeneralClaim, error)
	ListCourseMemberships(ctx context.Context, userID string) ([]domain.CourseMember, error)
}

// Builder assembles a Principal from a resolved user id, per spec.md §4.1.
type Builder struct {
	store Store
}

func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

// Build loads global roles, expands role-claim tables into general claims,
// and records one dependent claim per course membership.
func (b *Builder) Build(ctx context.Context, userID string) (Principal, error) {
	roles, err := b.store.ListUserRoles(ctx, userID)
	if err != nil {
		return Principal{}, fmt.Errorf("list user roles for %q: %w", userID, err)
	}

	general, err := b.store.ListGeneralClaims(ctx, roles)
	if err != nil {
		return Principal{}, fmt.Errorf("list general claims for %q: %w", userID, err)
	}

	memberships, err := b.store.ListCourseMemberships(ctx, userID)
	if err != nil {
		return Principal{}, fmt.Errorf("list course memberships for %q: %w", userID, err)
	}

	claims := newClaims()
	for _, gc := range general {
		claims.General[gc] = true
	}
	for _, m := range memberships {
		claims.grantDependent("course", m.CourseID, m.CourseRoleID)
	}

	isAdmin := claims.HasGeneral("_admin", "*")
	for _, r := range roles {
		if r == "_admin" {
			isAdmin = true
			break
		}
	}

	return Principal{
		UserID:  userID,
		IsAdmin: isAdmin,
		Roles:   roles,
		Claims:  claims,
	}, nil
}
