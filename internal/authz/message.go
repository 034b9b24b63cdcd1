package authz

import (
	"context"

	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/principal"
)

// messageHandler implements §4.8: visibility is the union of several
// sources, and create/update/delete follow a per-target writer table.
// CanPerform relies on resourceCtx precomputed by the caller (message
// store lookups), since it may not suspend.
type messageHandler struct{}

func NewMessageHandler() Handler {
	return &messageHandler{}
}

func (h *messageHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	switch action {
	case ActionGet, ActionList:
		if authorID, _ := resourceCtx["author_user_id"].(string); authorID == p.UserID {
			return true, nil
		}
		if targetUserID, _ := resourceCtx["target_user_id"].(string); targetUserID != "" && targetUserID == p.UserID {
			return true, nil
		}
		if isOwnCourseMember, _ := resourceCtx["is_own_course_member"].(bool); isOwnCourseMember {
			return true, nil
		}
		if isOwnSubmissionGroup, _ := resourceCtx["is_own_submission_group_member"].(bool); isOwnSubmissionGroup {
			return true, nil
		}
		if isOwnCourseGroup, _ := resourceCtx["is_own_course_group_member"].(bool); isOwnCourseGroup {
			return true, nil
		}
		courseID, _ := resourceCtx["course_id"].(string)
		return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleStudent), nil

	case ActionCreate:
		targetKind, _ := resourceCtx["target_kind"].(string)
		courseID, _ := resourceCtx["course_id"].(string)

		switch targetKind {
		case "submission_group":
			if isMember, _ := resourceCtx["is_own_submission_group_member"].(bool); isMember {
				return true, nil
			}
			return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleTutor), nil
		case "course_content", "course":
			return courseID != "" && p.Claims.CourseAtLeast(courseID, domain.CourseRoleLecturer), nil
		case "course_group":
			// course_group is a read-only target per §4.8: never creatable.
			return false, nil
		default:
			// user_id / course_member_id targets are "not implemented".
			return false, nil
		}

	case ActionUpdate, ActionDelete:
		authorID, _ := resourceCtx["author_user_id"].(string)
		return authorID == p.UserID, nil

	default:
		return false, nil
	}
}

func (h *messageHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	switch action {
	case ActionGet, ActionList:
		studentCourses := p.Claims.CourseIDsAtLeast(domain.CourseRoleStudent)
		tutorCourses := p.Claims.CourseIDsAtLeast(domain.CourseRoleTutor)

		return QueryRestriction{
			MessagePrimaryTargets: &MessageVisibility{
				AuthorUserID:          p.UserID,
				TargetUserID:          p.UserID,
				CourseIDIn:            studentCourses,
				BroadAccessCourseIDIn: tutorCourses,
			},
		}, nil
	case ActionUpdate, ActionDelete:
		owner := p.UserID
		return QueryRestriction{OwnerUserID: &owner}, nil
	default:
		return QueryRestriction{Deny: true}, nil
	}
}
