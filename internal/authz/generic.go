package authz

import (
	"context"

	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/principal"
)

// genericCourseHandler implements the role-threshold table in §4.2 for the
// kinds whose authorization is purely "general claim, else course-role
// threshold": Organization, CourseFamily, Course, CourseContent,
// CourseContentType. CanPerform expects resourceCtx["course_id"] (the
// course the resource belongs to — for Course itself, its own id; for
// Organization/CourseFamily, the store resolves a representative course
// before calling in, since those kinds aren't directly course-scoped).
type genericCourseHandler struct {
	kind      ResourceKind
	threshold roleThreshold
}

func newGenericCourseHandler(kind ResourceKind, threshold roleThreshold) *genericCourseHandler {
	return &genericCourseHandler{kind: kind, threshold: threshold}
}

func (h *genericCourseHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	if p.Claims.HasGeneral(string(h.kind), string(action)) {
		return true, nil
	}

	threshold := h.threshold.forAction(action)
	if threshold == "" {
		return false, nil
	}

	courseID, _ := resourceCtx["course_id"].(string)
	if courseID == "" {
		return false, nil
	}

	return p.Claims.CourseAtLeast(courseID, threshold), nil
}

func (h *genericCourseHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	if p.Claims.HasGeneral(string(h.kind), string(action)) {
		return QueryRestriction{Unrestricted: true}, nil
	}

	threshold := h.threshold.forAction(action)
	if threshold == "" {
		return QueryRestriction{Deny: true}, nil
	}

	ids := p.Claims.CourseIDsAtLeast(threshold)
	if len(ids) == 0 {
		return QueryRestriction{Deny: true}, nil
	}

	return QueryRestriction{CourseIDIn: ids}, nil
}

// NewOrganizationHandler, NewCourseFamilyHandler and NewCourseHandler carry
// identical get/list=_student, create/delete=admin-only, update=_lecturer
// thresholds (create/delete have no course-scoped path since there's no
// containing course to check a role in yet).
func NewOrganizationHandler() Handler {
	return newGenericCourseHandler(KindOrganization, roleThreshold{
		get: domain.CourseRoleStudent, list: domain.CourseRoleStudent,
		update: domain.CourseRoleLecturer,
	})
}

func NewCourseFamilyHandler() Handler {
	return newGenericCourseHandler(KindCourseFamily, roleThreshold{
		get: domain.CourseRoleStudent, list: domain.CourseRoleStudent,
		update: domain.CourseRoleLecturer,
	})
}

func NewCourseHandler() Handler {
	return newGenericCourseHandler(KindCourse, roleThreshold{
		get: domain.CourseRoleStudent, list: domain.CourseRoleStudent,
		update: domain.CourseRoleLecturer,
	})
}

func NewCourseContentHandler() Handler {
	return newGenericCourseHandler(KindCourseContent, roleThreshold{
		get: domain.CourseRoleStudent, list: domain.CourseRoleStudent,
		create: domain.CourseRoleLecturer, update: domain.CourseRoleLecturer, delete: domain.CourseRoleLecturer,
	})
}

func NewCourseContentTypeHandler() Handler {
	return newGenericCourseHandler(KindCourseContentType, roleThreshold{
		get: domain.CourseRoleStudent, list: domain.CourseRoleStudent,
		create: domain.CourseRoleLecturer, update: domain.CourseRoleLecturer, delete: domain.CourseRoleLecturer,
	})
}

// NewExampleHandler grants _lecturer in any course for every action, per
// the "Example: _lecturer (any course)" row — there's no per-example course
// scoping since examples are shared library content, not course-owned.
func NewExampleHandler() Handler {
	return &exampleHandler{}
}

type exampleHandler struct{}

func (h *exampleHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	return h.isLecturerAnyCourse(p), nil
}

func (h *exampleHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	if h.isLecturerAnyCourse(p) {
		return QueryRestriction{Unrestricted: true}, nil
	}
	return QueryRestriction{Deny: true}, nil
}

func (h *exampleHandler) isLecturerAnyCourse(p principal.Principal) bool {
	return len(p.Claims.CourseIDsAtLeast(domain.CourseRoleLecturer)) > 0
}
