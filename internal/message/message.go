// Package message implements hierarchical messages and read-tracking (C8)
// from spec.md §4.8: target inheritance from a parent, course_id copy-down
// for cache-tag/visibility queries, per-target write rules, and read markers.
package message

import (
	"context"
	"time"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/authz"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/viewcache"
)

// Repo is the persistence slice the message service needs.
type Repo interface {
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	ListMessagesRestricted(ctx context.Context, restriction authz.QueryRestriction) ([]domain.Message, error)
	CreateMessage(ctx context.Context, m domain.Message) (*domain.Message, error)
	UpdateMessage(ctx context.Context, m domain.Message) (*domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	GetSubmissionGroup(ctx context.Context, id string) (*domain.SubmissionGroup, error)
	GetCourseContent(ctx context.Context, id string) (*domain.CourseContent, error)

	InsertReadMarker(ctx context.Context, messageID, readerUserID string, readAt time.Time) error
	DeleteReadMarker(ctx context.Context, messageID, readerUserID string) error
}

type Service struct {
	repo  Repo
	cache *viewcache.Cache
}

func New(repo Repo, cache *viewcache.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// CreateInput carries exactly one primary target, or a ParentID to inherit
// one, per §4.8.
type CreateInput struct {
	ParentID          *string
	AuthorUserID      string
	UserID            *string
	CourseMemberID    *string
	SubmissionGroupID *string
	CourseGroupID     *string
	CourseContentID   *string
	CourseID          *string
	Title             string
	Content           string
}

// List returns every message restriction makes visible, newest first. The
// caller (the HTTP layer) computes restriction via authz.Registry.BuildQuery
// against the requesting principal.
func (s *Service) List(ctx context.Context, restriction authz.QueryRestriction) ([]domain.Message, error) {
	msgs, err := s.repo.ListMessagesRestricted(ctx, restriction)
	if err != nil {
		return nil, apierr.Database(err, "list messages")
	}
	return msgs, nil
}

// Create resolves target inheritance, copies down CourseID, and persists the
// message. Write-permission checks belong to internal/authz; this layer
// assumes the caller has already authorized target_kind via resourceCtx.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Message, error) {
	m := domain.Message{
		ParentID:          in.ParentID,
		AuthorUserID:      in.AuthorUserID,
		UserID:            in.UserID,
		CourseMemberID:    in.CourseMemberID,
		SubmissionGroupID: in.SubmissionGroupID,
		CourseGroupID:     in.CourseGroupID,
		CourseContentID:   in.CourseContentID,
		CourseID:          in.CourseID,
		Title:             in.Title,
		Content:           in.Content,
	}

	if in.ParentID != nil {
		parent, err := s.repo.GetMessage(ctx, *in.ParentID)
		if err != nil {
			return nil, apierr.Database(err, "load parent message")
		}
		if parent == nil {
			return nil, apierr.NotFound("Message", *in.ParentID)
		}
		m.UserID = parent.UserID
		m.CourseMemberID = parent.CourseMemberID
		m.SubmissionGroupID = parent.SubmissionGroupID
		m.CourseGroupID = parent.CourseGroupID
		m.CourseContentID = parent.CourseContentID
		m.CourseID = parent.CourseID
	}

	if err := s.resolveCourseID(ctx, &m); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateMessage(ctx, m)
	if err != nil {
		return nil, apierr.Database(err, "create message")
	}

	if err := s.invalidate(ctx, created); err != nil {
		return nil, apierr.Internal(err, "invalidate view cache after message create")
	}
	return created, nil
}

// resolveCourseID copies course_id down from whichever of submission_group or
// course_content is set, per §4.8's target hierarchy.
func (s *Service) resolveCourseID(ctx context.Context, m *domain.Message) error {
	if m.CourseID != nil {
		return nil
	}

	switch {
	case m.SubmissionGroupID != nil:
		group, err := s.repo.GetSubmissionGroup(ctx, *m.SubmissionGroupID)
		if err != nil {
			return apierr.Database(err, "load submission group for message")
		}
		if group == nil {
			return apierr.NotFound("SubmissionGroup", *m.SubmissionGroupID)
		}
		m.CourseID = &group.CourseID
	case m.CourseContentID != nil:
		content, err := s.repo.GetCourseContent(ctx, *m.CourseContentID)
		if err != nil {
			return apierr.Database(err, "load course content for message")
		}
		if content == nil {
			return apierr.NotFound("CourseContent", *m.CourseContentID)
		}
		m.CourseID = &content.CourseID
	}
	return nil
}

// Update changes title/content; callers have already authorized
// author-only access.
func (s *Service) Update(ctx context.Context, id, title, content string) (*domain.Message, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, apierr.Database(err, "load message")
	}
	if m == nil {
		return nil, apierr.NotFound("Message", id)
	}
	m.Title = title
	m.Content = content

	updated, err := s.repo.UpdateMessage(ctx, *m)
	if err != nil {
		return nil, apierr.Database(err, "update message")
	}
	if err := s.invalidate(ctx, updated); err != nil {
		return nil, apierr.Internal(err, "invalidate view cache after message update")
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return apierr.Database(err, "load message")
	}
	if m == nil {
		return apierr.NotFound("Message", id)
	}
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		return apierr.Database(err, "delete message")
	}
	return s.invalidate(ctx, m)
}

// MarkRead inserts a read marker if absent and invalidates the reader's
// view cache.
func (s *Service) MarkRead(ctx context.Context, messageID, readerUserID string) error {
	if err := s.repo.InsertReadMarker(ctx, messageID, readerUserID, time.Now().UTC()); err != nil {
		return apierr.Database(err, "insert read marker")
	}
	return s.cache.InvalidateUserViews(ctx, readerUserID)
}

// MarkUnread deletes the read marker, symmetric to MarkRead.
func (s *Service) MarkUnread(ctx context.Context, messageID, readerUserID string) error {
	if err := s.repo.DeleteReadMarker(ctx, messageID, readerUserID); err != nil {
		return apierr.Database(err, "delete read marker")
	}
	return s.cache.InvalidateUserViews(ctx, readerUserID)
}

func (s *Service) invalidate(ctx context.Context, m *domain.Message) error {
	tags := []string{"message:" + m.ID}
	if m.CourseID != nil {
		tags = append(tags, "course:"+*m.CourseID)
	}
	if m.CourseContentID != nil {
		tags = append(tags, "course_content:"+*m.CourseContentID)
	}
	if m.SubmissionGroupID != nil {
		tags = append(tags, "submission_group:"+*m.SubmissionGroupID)
	}
	if m.CourseGroupID != nil {
		tags = append(tags, "course_group:"+*m.CourseGroupID)
	}
	return s.cache.InvalidateTags(ctx, tags...)
}
