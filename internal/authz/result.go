package authz

import (
	"context"

	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/principal"
)

// resultHandler implements the Result row of the role thresholds table:
// get/list is owner-via-own-submission-group else _tutor; create is
// _student acting on themselves; update is _tutor; delete is _lecturer.
//
// CanPerform never suspends (per the concurrency model's "authorization
// handlers do not suspend while evaluating can_perform" rule), so the
// caller must resolve resourceCtx["is_own_submission_group"] and
// resourceCtx["course_member_user_id"] from the database before invoking
// it.
type resultHandler struct{}

func NewResultHandler() Handler {
	return &resultHandler{}
}

func (h *resultHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	if p.Claims.HasGeneral(string(KindResult), string(action)) {
		return true, nil
	}

	courseID, _ := resourceCtx["course_id"].(string)

	switch action {
	case ActionGet, ActionList:
		if isOwn, _ := resourceCtx["is_own_submission_group"].(bool); isOwn {
			return true, nil
		}
		return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleTutor), nil
	case ActionCreate:
		memberUserID, _ := resourceCtx["course_member_user_id"].(string)
		return memberUserID == p.UserID, nil
	case ActionUpdate:
		return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleTutor), nil
	case ActionDelete:
		return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleLecturer), nil
	default:
		return false, nil
	}
}

func (h *resultHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	if p.Claims.HasGeneral(string(KindResult), string(action)) {
		return QueryRestriction{Unrestricted: true}, nil
	}

	switch action {
	case ActionGet, ActionList:
		tutorCourses := p.Claims.CourseIDsAtLeast(domain.CourseRoleTutor)
		owner := p.UserID
		return QueryRestriction{CourseIDIn: tutorCourses, SubmissionGroupMemberOfUserID: &owner}, nil
	case ActionCreate:
		// Creation is always self-scoped; the store still checks the
		// submission group membership context at write time.
		owner := p.UserID
		return QueryRestriction{OwnerUserID: &owner}, nil
	case ActionUpdate:
		ids := p.Claims.CourseIDsAtLeast(domain.CourseRoleTutor)
		if len(ids) == 0 {
			return QueryRestriction{Deny: true}, nil
		}
		return QueryRestriction{CourseIDIn: ids}, nil
	case ActionDelete:
		ids := p.Claims.CourseIDsAtLeast(domain.CourseRoleLecturer)
		if len(ids) == 0 {
			return QueryRestriction{Deny: true}, nil
		}
		return QueryRestriction{CourseIDIn: ids}, nil
	default:
		return QueryRestriction{Deny: true}, nil
	}
}
