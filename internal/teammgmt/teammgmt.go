// Package teammgmt implements submission-group membership management: join
// by code, leave, and the max-group-size/pending-approval rules supplemented
// from the original team_management business logic (spec.md's
// POST /submission-groups/{id}/join).
package teammgmt

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/viewcache"
)

// Repo is the persistence slice team management needs.
type Repo interface {
	GetSubmissionGroup(ctx context.Context, id string) (*domain.SubmissionGroup, error)
	GetSubmissionGroupByJoinCode(ctx context.Context, courseContentID, joinCode string) (*domain.SubmissionGroup, error)
	CountGroupMembers(ctx context.Context, groupID string) (int, error)
	GetGroupMembership(ctx context.Context, groupID, courseMemberID string) (*domain.SubmissionGroupMember, error)
	CreateGroupMembership(ctx context.Context, m domain.SubmissionGroupMember) (*domain.SubmissionGroupMember, error)
	DeleteGroupMembership(ctx context.Context, groupID, courseMemberID string) error
	// RequiresApproval reports whether the content this group belongs to
	// requires lecturer/tutor sign-off before a join takes effect.
	RequiresApproval(ctx context.Context, courseContentID string) (bool, error)
	ApproveMembership(ctx context.Context, groupID, courseMemberID string) error
	UpdateJoinCode(ctx context.Context, groupID, joinCode string) (*domain.SubmissionGroup, error)
}

type Service struct {
	repo  Repo
	cache *viewcache.Cache
}

func New(repo Repo, cache *viewcache.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Join validates the join code against the group's own code, enforces
// max_group_size, and either admits the member directly or as pending,
// depending on whether the content requires sign-off.
func (s *Service) Join(ctx context.Context, groupID, courseMemberID, joinCode string) (*domain.SubmissionGroupMember, error) {
	group, err := s.repo.GetSubmissionGroup(ctx, groupID)
	if err != nil {
		return nil, apierr.Database(err, "load submission group")
	}
	if group == nil {
		return nil, apierr.NotFound("SubmissionGroup", groupID)
	}
	if !strings.EqualFold(group.JoinCode, joinCode) {
		return nil, apierr.Forbidden("invalid join code")
	}

	existing, err := s.repo.GetGroupMembership(ctx, groupID, courseMemberID)
	if err != nil {
		return nil, apierr.Database(err, "check existing membership")
	}
	if existing != nil {
		return existing, nil
	}

	count, err := s.repo.CountGroupMembers(ctx, groupID)
	if err != nil {
		return nil, apierr.Database(err, "count group members")
	}
	if group.MaxGroupSize > 0 && count >= group.MaxGroupSize {
		return nil, apierr.BadRequest("submission group is at its max_group_size limit")
	}

	needsApproval, err := s.repo.RequiresApproval(ctx, group.CourseContentID)
	if err != nil {
		return nil, apierr.Database(err, "check approval requirement")
	}

	member, err := s.repo.CreateGroupMembership(ctx, domain.SubmissionGroupMember{
		SubmissionGroupID: groupID,
		CourseMemberID:    courseMemberID,
		Pending:           needsApproval,
	})
	if err != nil {
		return nil, apierr.Database(err, "create group membership")
	}

	if err := s.cache.InvalidateTags(ctx, "submission_group:"+groupID); err != nil {
		return nil, apierr.Internal(err, "invalidate view cache after join")
	}
	return member, nil
}

// Approve admits a pending member, for use by a lecturer/tutor.
func (s *Service) Approve(ctx context.Context, groupID, courseMemberID string) error {
	if err := s.repo.ApproveMembership(ctx, groupID, courseMemberID); err != nil {
		return apierr.Database(err, "approve group membership")
	}
	return s.cache.InvalidateTags(ctx, "submission_group:"+groupID)
}

// Leave removes courseMemberID from the group.
func (s *Service) Leave(ctx context.Context, groupID, courseMemberID string) error {
	if err := s.repo.DeleteGroupMembership(ctx, groupID, courseMemberID); err != nil {
		return apierr.Database(err, "delete group membership")
	}
	return s.cache.InvalidateTags(ctx, "submission_group:"+groupID)
}

// RegenerateJoinCode replaces a group's join code, e.g. after a leak.
func (s *Service) RegenerateJoinCode(ctx context.Context, groupID string) (*domain.SubmissionGroup, error) {
	code, err := generateJoinCode()
	if err != nil {
		return nil, apierr.Internal(err, "generate join code")
	}
	updated, err := s.repo.UpdateJoinCode(ctx, groupID, code)
	if err != nil {
		return nil, apierr.Database(err, "update join code")
	}
	return updated, nil
}

func generateJoinCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
