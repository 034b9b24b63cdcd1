package server

import (
	"context"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/principal"
)

// courseMemberFor resolves the CourseMember row binding userID to courseID,
// used by handlers that receive a course-scoped resource id and need the
// caller's membership row rather than their bare user id.
func (s *Server) courseMemberFor(ctx context.Context, userID, courseID string) (*domain.CourseMember, error) {
	members, err := s.store.ListCourseMemberships(ctx, userID)
	if err != nil {
		return nil, apierr.Database(err, "list course memberships")
	}
	for _, m := range members {
		if m.CourseID == courseID {
			return &m, nil
		}
	}
	return nil, nil
}

// elevatedInCourse reports whether the principal holds at least the tutor
// role in courseID, the threshold §4.4 uses to bypass group-membership
// checks (tutors/lecturers can upload/test on behalf of a group).
func elevatedInCourse(p principal.Principal, courseID string) bool {
	return p.Claims.CourseAtLeast(courseID, domain.CourseRoleTutor)
}
