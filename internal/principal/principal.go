// Package principal builds and caches the request-scoped Principal that
// authorization handlers (internal/authz) consume: a resolved identity
// carrying global roles and course-scoped claims, per spec.md §4.1.
package principal

import (
	"github.com/computor-platform/computor-api/internal/domain"
)

// GeneralClaim is a (resource_kind, action) pair granted independent of any
// specific course, e.g. ("CourseMember", "create") for a user manager.
type GeneralClaim struct {
	Resource string
	Action   string
}

// Claims is the expanded claim set a Principal carries.
type Claims struct {
	// General holds claims not scoped to a specific resource instance.
	General map[GeneralClaim]bool
	// Dependent holds course-scoped role claims: resource kind (currently
	// always "course") -> resource id -> the set of course roles held.
	// In practice a principal holds exactly one explicit CourseMember role
	// per course; the set captures that role plus everything implied below
	// it by the hierarchy, so membership checks never need to re-derive it.
	Dependent map[string]map[string]map[domain.CourseRole]bool
}

func newClaims() Claims {
	return Claims{
		General:   make(map[GeneralClaim]bool),
		Dependent: make(map[string]map[string]map[domain.CourseRole]bool),
	}
}

// HasGeneral reports whether the principal has the general claim.
func (c Claims) HasGeneral(resource, action string) bool {
	return c.General[GeneralClaim{Resource: resource, Action: action}]
}

// CourseRole returns the highest course role held in courseID, ok=false if
// none.
func (c Claims) CourseRole(courseID string) (domain.CourseRole, bool) {
	roles, ok := c.Dependent["course"][courseID]
	if !ok || len(roles) == 0 {
		return "", false
	}
	best := domain.CourseRole("")
	bestRank := -1
	for r := range roles {
		if rank := domain.RoleRank(r); rank > bestRank {
			best, bestRank = r, rank
		}
	}
	return best, true
}

// CourseAtLeast reports whether the principal's role in courseID meets or
// exceeds threshold.
func (c Claims) CourseAtLeast(courseID string, threshold domain.CourseRole) bool {
	role, ok := c.CourseRole(courseID)
	return ok && role.AtLeast(threshold)
}

// CourseIDsAtLeast returns every course id where the principal holds at
// least threshold, used to build query restrictions (§4.2 "query
// narrowing").
func (c Claims) CourseIDsAtLeast(threshold domain.CourseRole) []string {
	var ids []string
	for courseID, roles := range c.Dependent["course"] {
		best := domain.CourseRole("")
		bestRank := -1
		for r := range roles {
			if rank := domain.RoleRank(r); rank > bestRank {
				best, bestRank = r, rank
			}
		}
		if bestRank >= 0 && best.AtLeast(threshold) {
			ids = append(ids, courseID)
		}
	}
	return ids
}

// grantDependent adds a course role (and every role it implies below it in
// the hierarchy) to the dependent claim set, per spec.md §4.1 step 4.
func (c Claims) grantDependent(kind, resourceID string, role domain.CourseRole) {
	if c.Dependent[kind] == nil {
		c.Dependent[kind] = make(map[string]map[domain.CourseRole]bool)
	}
	if c.Dependent[kind][resourceID] == nil {
		c.Dependent[kind][resourceID] = make(map[domain.CourseRole]bool)
	}
	rank := domain.RoleRank(role)
	for i, r := range []domain.CourseRole{
		domain.CourseRoleStudent,
		domain.CourseRoleTutor,
		domain.CourseRoleLecturer,
		domain.CourseRoleMaintainer,
		domain.CourseRoleOwner,
	} {
		if i <= rank {
			c.Dependent[kind][resourceID][r] = true
		}
	}
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID  string
	IsAdmin bool
	Roles   []string
	Claims  Claims
}

// HasRole reports whether the principal carries the named global role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
