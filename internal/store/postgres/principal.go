package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/principal"
)

func (p *Postgres) ListUserRoles(ctx context.Context, userID string) ([]string, error) {
	query, _, err := p.goqu.From(p.tableUserRoles).
		Select("role").
		Where(goqu.I("user_id").Eq(userID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list user roles query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListGeneralClaims resolves roles against the static general-claim table
// seeded by migrations (role -> resource/action), e.g. "_admin" -> ("*","*").
func (p *Postgres) ListGeneralClaims(ctx context.Context, roles []string) ([]principal.GeneralClaim, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query, _, err := p.goqu.From(goqu.T(p.tablePrefix + "role_claims")).
		Select("resource", "action").
		Where(goqu.I("role").In(roles)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list general claims query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list general claims: %w", err)
	}
	defer rows.Close()

	var claims []principal.GeneralClaim
	for rows.Next() {
		var gc principal.GeneralClaim
		if err := rows.Scan(&gc.Resource, &gc.Action); err != nil {
			return nil, fmt.Errorf("scan general claim: %w", err)
		}
		claims = append(claims, gc)
	}
	return claims, rows.Err()
}

func (p *Postgres) ListCourseMemberships(ctx context.Context, userID string) ([]domain.CourseMember, error) {
	query, _, err := p.goqu.From(p.tableCourseMembers).
		Select("id", "course_id", "user_id", "course_role_id", "course_group_id", "created_at").
		Where(goqu.I("user_id").Eq(userID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list course memberships query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list course memberships: %w", err)
	}
	defer rows.Close()

	var members []domain.CourseMember
	for rows.Next() {
		var m domain.CourseMember
		if err := rows.Scan(&m.ID, &m.CourseID, &m.UserID, &m.CourseRoleID, &m.CourseGroupID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
