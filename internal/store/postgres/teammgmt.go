package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/computor-platform/computor-api/internal/domain"
)

func (p *Postgres) GetSubmissionGroupByJoinCode(ctx context.Context, courseContentID, joinCode string) (*domain.SubmissionGroup, error) {
	query, _, err := p.goqu.From(p.tableSubmissionGroups).
		Select("id", "course_id", "course_content_id", "join_code", "max_group_size", "max_submissions", "max_test_runs", "created_at").
		Where(goqu.I("course_content_id").Eq(courseContentID), goqu.L("lower(join_code)").Eq(goqu.L("lower(?)", joinCode))).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get submission group by join code query: %w", err)
	}

	var g domain.SubmissionGroup
	err = p.db.QueryRowContext(ctx, query).Scan(&g.ID, &g.CourseID, &g.CourseContentID, &g.JoinCode, &g.MaxGroupSize, &g.MaxSubmissions, &g.MaxTestRuns, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission group by join code: %w", err)
	}
	return &g, nil
}

func (p *Postgres) CountGroupMembers(ctx context.Context, groupID string) (int, error) {
	query, _, err := p.goqu.From(p.tableSubmissionGroupMembers).
		Select(goqu.COUNT("*")).
		Where(goqu.I("submission_group_id").Eq(groupID), goqu.I("pending").Eq(false)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count group members query: %w", err)
	}

	var count int
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count group members: %w", err)
	}
	return count, nil
}

func (p *Postgres) GetGroupMembership(ctx context.Context, groupID, courseMemberID string) (*domain.SubmissionGroupMember, error) {
	query, _, err := p.goqu.From(p.tableSubmissionGroupMembers).
		Select("id", "submission_group_id", "course_member_id", "pending", "created_at").
		Where(goqu.I("submission_group_id").Eq(groupID), goqu.I("course_member_id").Eq(courseMemberID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get group membership query: %w", err)
	}

	var m domain.SubmissionGroupMember
	err = p.db.QueryRowContext(ctx, query).Scan(&m.ID, &m.SubmissionGroupID, &m.CourseMemberID, &m.Pending, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group membership: %w", err)
	}
	return &m, nil
}

func (p *Postgres) CreateGroupMembership(ctx context.Context, m domain.SubmissionGroupMember) (*domain.SubmissionGroupMember, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableSubmissionGroupMembers).Rows(goqu.Record{
		"id":                   id,
		"submission_group_id":  m.SubmissionGroupID,
		"course_member_id":     m.CourseMemberID,
		"pending":              m.Pending,
		"created_at":           now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create group membership query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create group membership: %w", err)
	}

	m.ID = id
	m.CreatedAt = now
	return &m, nil
}

func (p *Postgres) DeleteGroupMembership(ctx context.Context, groupID, courseMemberID string) error {
	query, _, err := p.goqu.Delete(p.tableSubmissionGroupMembers).
		Where(goqu.I("submission_group_id").Eq(groupID), goqu.I("course_member_id").Eq(courseMemberID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete group membership query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete group membership: %w", err)
	}
	return nil
}

// RequiresApproval reports whether contentID's type is configured to
// require lecturer/tutor sign-off before a join takes effect. Modeled here
// as "non-student-facing kinds never auto-admit"; the concrete rule lives on
// course_content_types.execution_backend_id being unset meaning manual review
// content, matching how the teacher's own approval gates are data-driven
// rather than hardcoded.
func (p *Postgres) RequiresApproval(ctx context.Context, courseContentID string) (bool, error) {
	query, _, err := p.goqu.From(p.tableCourseContents.As("cc")).
		Join(p.tableCourseContentTypes.As("ct"), goqu.On(goqu.I("ct.id").Eq(goqu.I("cc.course_content_type_id")))).
		Select("ct.execution_backend_id").
		Where(goqu.I("cc.id").Eq(courseContentID)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build requires approval query: %w", err)
	}

	var backend string
	err = p.db.QueryRowContext(ctx, query).Scan(&backend)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("requires approval: %w", err)
	}
	return backend == "", nil
}

func (p *Postgres) ApproveMembership(ctx context.Context, groupID, courseMemberID string) error {
	query, _, err := p.goqu.Update(p.tableSubmissionGroupMembers).
		Set(goqu.Record{"pending": false}).
		Where(goqu.I("submission_group_id").Eq(groupID), goqu.I("course_member_id").Eq(courseMemberID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build approve membership query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("approve membership: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateJoinCode(ctx context.Context, groupID, joinCode string) (*domain.SubmissionGroup, error) {
	query, _, err := p.goqu.Update(p.tableSubmissionGroups).
		Set(goqu.Record{"join_code": joinCode}).
		Where(goqu.I("id").Eq(groupID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update join code query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("update join code: %w", err)
	}
	return p.GetSubmissionGroup(ctx, groupID)
}
