package authz

import (
	"context"

	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/principal"
)

// courseMemberHandler implements the CourseMember row of the role
// thresholds table: get/list requires _tutor, except a member can always
// see their own row; create/update/delete require _lecturer.
type courseMemberHandler struct{}

func NewCourseMemberHandler() Handler {
	return &courseMemberHandler{}
}

func (h *courseMemberHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	if p.Claims.HasGeneral(string(KindCourseMember), string(action)) {
		return true, nil
	}

	courseID, _ := resourceCtx["course_id"].(string)

	switch action {
	case ActionGet:
		if ownerUserID, _ := resourceCtx["user_id"].(string); ownerUserID != "" && ownerUserID == p.UserID {
			return true, nil
		}
		return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleTutor), nil
	case ActionList:
		return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleTutor), nil
	case ActionCreate, ActionUpdate, ActionDelete:
		return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleLecturer), nil
	default:
		return false, nil
	}
}

func (h *courseMemberHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	if p.Claims.HasGeneral(string(KindCourseMember), string(action)) {
		return QueryRestriction{Unrestricted: true}, nil
	}

	threshold := domain.CourseRoleTutor
	if action == ActionCreate || action == ActionUpdate || action == ActionDelete {
		threshold = domain.CourseRoleLecturer
	}

	ids := p.Claims.CourseIDsAtLeast(threshold)

	if action == ActionGet || action == ActionList {
		// The member's own row is always visible regardless of course role,
		// so the store layer ORs CourseIDIn with OwnerUserID = principal.
		owner := p.UserID
		return QueryRestriction{CourseIDIn: ids, OwnerUserID: &owner}, nil
	}

	if len(ids) == 0 {
		return QueryRestriction{Deny: true}, nil
	}
	return QueryRestriction{CourseIDIn: ids}, nil
}
