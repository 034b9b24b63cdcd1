// grading.go implements the tutor grading queue (business_logic/tutor.py
// analogue): listing ungraded SubmissionArtifacts within a tutor's
// authorization-restricted course set, and recording a SubmissionGrade.
package submission

import (
	"context"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/authz"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/viewcache"
)

// GradingRepo is the slice of persistence the grading queue needs, kept
// separate from Repo since it is only exercised by tutor/lecturer-facing
// operations.
type GradingRepo interface {
	ListUngradedArtifacts(ctx context.Context, restriction authz.QueryRestriction) ([]domain.SubmissionArtifact, error)
	CreateGrade(ctx context.Context, g domain.SubmissionGrade) (*domain.SubmissionGrade, error)
	GetSubmissionArtifactByID(ctx context.Context, id string) (*domain.SubmissionArtifact, error)
	GetSubmissionGroup(ctx context.Context, groupID string) (*domain.SubmissionGroup, error)
}

type GradingQueue struct {
	repo  GradingRepo
	cache *viewcache.Cache
}

func NewGradingQueue(repo GradingRepo, cache *viewcache.Cache) *GradingQueue {
	return &GradingQueue{repo: repo, cache: cache}
}

// ListUngraded returns the artifacts a tutor may grade, already narrowed by
// the authz-computed QueryRestriction for their course role set.
func (q *GradingQueue) ListUngraded(ctx context.Context, restriction authz.QueryRestriction) ([]domain.SubmissionArtifact, error) {
	artifacts, err := q.repo.ListUngradedArtifacts(ctx, restriction)
	if err != nil {
		return nil, apierr.Database(err, "list ungraded submission artifacts")
	}
	return artifacts, nil
}

// Grade records a SubmissionGrade for artifactID, authored by authorUserID.
func (q *GradingQueue) Grade(ctx context.Context, artifactID, authorUserID string, grade float64, status domain.GradeStatus, comment string) (*domain.SubmissionGrade, error) {
	artifact, err := q.repo.GetSubmissionArtifactByID(ctx, artifactID)
	if err != nil {
		return nil, apierr.Database(err, "load submission artifact")
	}
	if artifact == nil {
		return nil, apierr.NotFound("SubmissionArtifact", artifactID)
	}

	created, err := q.repo.CreateGrade(ctx, domain.SubmissionGrade{
		SubmissionArtifactID: artifactID,
		AuthorUserID:         authorUserID,
		Grade:                grade,
		Status:               status,
		Comment:              comment,
	})
	if err != nil {
		return nil, apierr.Database(err, "create submission grade")
	}

	group, err := q.repo.GetSubmissionGroup(ctx, artifact.SubmissionGroupID)
	if err != nil {
		return nil, apierr.Database(err, "load submission group")
	}
	if group != nil {
		if err := q.cache.InvalidateTags(ctx,
			"student_view:"+group.CourseID,
			"tutor_view:"+group.CourseID,
			"lecturer_view:"+group.CourseID,
		); err != nil {
			return nil, apierr.Internal(err, "invalidate view cache after grading")
		}
	}

	return created, nil
}
