package postgres

import (
	"github.com/doug-martin/goqu/v9"

	"github.com/computor-platform/computor-api/internal/authz"
)

// applyCourseRestriction narrows ds to restriction.CourseIDIn on courseIDCol,
// the standard §4.2 course-scoped narrowing. denied reports whether the
// restriction forbids every row, in which case the caller should skip
// running the query entirely (an empty goqu.I().In() would otherwise be
// misread as "no restriction" by some drivers).
func applyCourseRestriction(ds *goqu.SelectDataset, courseIDCol string, restriction authz.QueryRestriction) (_ *goqu.SelectDataset, denied bool) {
	switch {
	case restriction.Deny:
		return ds, true
	case restriction.Unrestricted:
		return ds, false
	case len(restriction.CourseIDIn) > 0:
		return ds.Where(goqu.I(courseIDCol).In(restriction.CourseIDIn)), false
	default:
		return ds, true
	}
}
