// Package profile implements the course-member self-service StudentProfile
// CRUD (supplementing spec.md's StudentProfile permission row): the owner or
// a holder of a general claim may read; create, update and delete need a
// general claim, per the table in spec.md §4.2.
package profile

import (
	"context"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/viewcache"
)

// Repo is the persistence slice the profile service needs.
type Repo interface {
	GetProfile(ctx context.Context, courseMemberID string) (*domain.StudentProfile, error)
	UpsertProfile(ctx context.Context, p domain.StudentProfile) (*domain.StudentProfile, error)
	DeleteProfile(ctx context.Context, courseMemberID string) error
}

type Service struct {
	repo  Repo
	cache *viewcache.Cache
}

func New(repo Repo, cache *viewcache.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) Get(ctx context.Context, courseMemberID string) (*domain.StudentProfile, error) {
	p, err := s.repo.GetProfile(ctx, courseMemberID)
	if err != nil {
		return nil, apierr.Database(err, "load student profile")
	}
	if p == nil {
		return nil, apierr.NotFound("StudentProfile", courseMemberID)
	}
	return p, nil
}

// Upsert creates or replaces the profile for courseMemberID. Authorization
// (a general claim) is the caller's responsibility via internal/authz.
func (s *Service) Upsert(ctx context.Context, courseMemberID, bio, avatarURL string) (*domain.StudentProfile, error) {
	updated, err := s.repo.UpsertProfile(ctx, domain.StudentProfile{
		CourseMemberID: courseMemberID,
		Bio:            bio,
		AvatarURL:      avatarURL,
	})
	if err != nil {
		return nil, apierr.Database(err, "upsert student profile")
	}
	if err := s.cache.InvalidateTags(ctx, "course_member:"+courseMemberID); err != nil {
		return nil, apierr.Internal(err, "invalidate view cache after profile upsert")
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, courseMemberID string) error {
	if err := s.repo.DeleteProfile(ctx, courseMemberID); err != nil {
		return apierr.Database(err, "delete student profile")
	}
	return s.cache.InvalidateTags(ctx, "course_member:"+courseMemberID)
}
