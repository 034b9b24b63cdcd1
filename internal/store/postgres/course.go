package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/computor-platform/computor-api/internal/domain"
)

func (p *Postgres) GetCourseContent(ctx context.Context, contentID string) (*domain.CourseContent, error) {
	query, _, err := p.goqu.From(p.tableCourseContents).
		Select("id", "course_id", "course_content_type_id", "path", "title", "max_group_size", "created_at", "updated_at").
		Where(goqu.I("id").Eq(contentID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get course content query: %w", err)
	}

	var c domain.CourseContent
	err = p.db.QueryRowContext(ctx, query).Scan(&c.ID, &c.CourseID, &c.CourseContentTypeID, &c.Path, &c.Title, &c.MaxGroupSize, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get course content %q: %w", contentID, err)
	}
	return &c, nil
}

func (p *Postgres) GetCourseContentType(ctx context.Context, typeID string) (*domain.CourseContentType, error) {
	query, _, err := p.goqu.From(p.tableCourseContentTypes).
		Select("id", "course_id", "slug", "title", "course_content_kind_id", "execution_backend_id").
		Where(goqu.I("id").Eq(typeID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get course content type query: %w", err)
	}

	var ct domain.CourseContentType
	err = p.db.QueryRowContext(ctx, query).Scan(&ct.ID, &ct.CourseID, &ct.Slug, &ct.Title, &ct.CourseContentKindID, &ct.ExecutionBackendID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get course content type %q: %w", typeID, err)
	}
	return &ct, nil
}

func (p *Postgres) GetSubmissionGroup(ctx context.Context, groupID string) (*domain.SubmissionGroup, error) {
	query, _, err := p.goqu.From(p.tableSubmissionGroups).
		Select("id", "course_id", "course_content_id", "join_code", "max_group_size", "max_submissions", "max_test_runs", "created_at").
		Where(goqu.I("id").Eq(groupID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get submission group query: %w", err)
	}

	var g domain.SubmissionGroup
	err = p.db.QueryRowContext(ctx, query).Scan(&g.ID, &g.CourseID, &g.CourseContentID, &g.JoinCode, &g.MaxGroupSize, &g.MaxSubmissions, &g.MaxTestRuns, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission group %q: %w", groupID, err)
	}
	return &g, nil
}

func (p *Postgres) IsGroupMember(ctx context.Context, groupID, courseMemberID string) (bool, error) {
	query, _, err := p.goqu.From(p.tableSubmissionGroupMembers).
		Select(goqu.COUNT("*")).
		Where(goqu.I("submission_group_id").Eq(groupID), goqu.I("course_member_id").Eq(courseMemberID), goqu.I("pending").Eq(false)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build is group member query: %w", err)
	}

	var count int
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return false, fmt.Errorf("check group membership: %w", err)
	}
	return count > 0, nil
}
