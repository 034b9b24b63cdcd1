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
	"github.com/computor-platform/computor-api/internal/testscheduler"
)

// FindResultByID backs GET /tests/status/{result_id}.
func (p *Postgres) FindResultByID(ctx context.Context, id string) (*domain.Result, error) {
	query, _, err := p.goqu.From(p.tableResults).
		Select("id", "submission_artifact_id", "course_member_id", "course_content_id", "course_content_type_id",
			"execution_backend_id", "test_system_id", "status", "grade", "result_json", "log_text",
			"version_identifier", "reference_version_identifier", "properties", "created_at", "started_at", "finished_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find result by id query: %w", err)
	}
	return p.scanOptionalResult(ctx, query)
}

// FindActiveResult returns the most recent non-terminal Result for
// (artifactID, courseMemberID), or nil if none exists.
func (p *Postgres) FindActiveResult(ctx context.Context, artifactID, courseMemberID string) (*domain.Result, error) {
	query, _, err := p.goqu.From(p.tableResults).
		Select("id", "submission_artifact_id", "course_member_id", "course_content_id", "course_content_type_id",
			"execution_backend_id", "test_system_id", "status", "grade", "result_json", "log_text",
			"version_identifier", "reference_version_identifier", "properties", "created_at", "started_at", "finished_at").
		Where(
			goqu.I("submission_artifact_id").Eq(artifactID),
			goqu.I("course_member_id").Eq(courseMemberID),
			goqu.I("status").NotIn(int(domain.ResultFinished), int(domain.ResultCancelled), int(domain.ResultCrashed)),
		).
		Order(goqu.I("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find active result query: %w", err)
	}
	return p.scanOptionalResult(ctx, query)
}

// FindFinishedResult returns the most recent terminal, successfully-finished
// Result for (courseMemberID, contentID, versionIdentifier), or nil.
func (p *Postgres) FindFinishedResult(ctx context.Context, courseMemberID, contentID, versionIdentifier string) (*domain.Result, error) {
	query, _, err := p.goqu.From(p.tableResults).
		Select("id", "submission_artifact_id", "course_member_id", "course_content_id", "course_content_type_id",
			"execution_backend_id", "test_system_id", "status", "grade", "result_json", "log_text",
			"version_identifier", "reference_version_identifier", "properties", "created_at", "started_at", "finished_at").
		Where(
			goqu.I("course_member_id").Eq(courseMemberID),
			goqu.I("course_content_id").Eq(contentID),
			goqu.I("version_identifier").Eq(versionIdentifier),
			goqu.I("status").Eq(int(domain.ResultFinished)),
		).
		Order(goqu.I("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find finished result query: %w", err)
	}
	return p.scanOptionalResult(ctx, query)
}

func (p *Postgres) CountTestRuns(ctx context.Context, submissionGroupID string) (int, error) {
	query, _, err := p.goqu.From(p.tableResults.As("r")).
		Join(p.tableSubmissionArtifacts.As("sa"), goqu.On(goqu.I("sa.id").Eq(goqu.I("r.submission_artifact_id")))).
		Select(goqu.COUNT("*")).
		Where(goqu.I("sa.submission_group_id").Eq(submissionGroupID)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count test runs query: %w", err)
	}

	var count int
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count test runs: %w", err)
	}
	return count, nil
}

func (p *Postgres) CreateResult(ctx context.Context, r domain.Result) (*domain.Result, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	if r.ResultJSON == "" {
		r.ResultJSON = "{}"
	}
	if r.Properties == "" {
		r.Properties = "{}"
	}

	query, _, err := p.goqu.Insert(p.tableResults).Rows(goqu.Record{
		"id":                            id,
		"submission_artifact_id":        r.SubmissionArtifactID,
		"course_member_id":              r.CourseMemberID,
		"course_content_id":             r.CourseContentID,
		"course_content_type_id":        r.CourseContentTypeID,
		"execution_backend_id":          r.ExecutionBackendID,
		"test_system_id":                r.TestSystemID,
		"status":                        int(r.Status),
		"grade":                         r.Grade,
		"result_json":                   r.ResultJSON,
		"log_text":                      r.LogText,
		"version_identifier":            r.VersionIdentifier,
		"reference_version_identifier":  r.ReferenceVersionIdentifier,
		"properties":                    r.Properties,
		"created_at":                    now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create result query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		// The partial unique index on (course_member_id, course_content_id,
		// version_identifier) WHERE status NOT IN (finished, cancelled,
		// crashed) surfaces as a unique_violation here.
		return nil, fmt.Errorf("create result: %w: %w", err, testscheduler.ErrConflict)
	}

	r.ID = id
	r.CreatedAt = now
	return &r, nil
}

func (p *Postgres) UpdateResultStatus(ctx context.Context, resultID string, status domain.ResultStatus, grade *float64, resultJSON, logText string) error {
	now := time.Now().UTC()
	set := goqu.Record{
		"status":      int(status),
		"grade":       grade,
		"result_json": resultJSON,
		"log_text":    logText,
	}
	if status.Terminal() {
		set["finished_at"] = now
	}

	query, _, err := p.goqu.Update(p.tableResults).
		Set(set).
		Where(goqu.I("id").Eq(resultID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update result status query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("update result status: %w", err)
	}
	return nil
}

func (p *Postgres) scanOptionalResult(ctx context.Context, query string) (*domain.Result, error) {
	var r domain.Result
	err := p.db.QueryRowContext(ctx, query).Scan(&r.ID, &r.SubmissionArtifactID, &r.CourseMemberID, &r.CourseContentID,
		&r.CourseContentTypeID, &r.ExecutionBackendID, &r.TestSystemID, &r.Status, &r.Grade, &r.ResultJSON, &r.LogText,
		&r.VersionIdentifier, &r.ReferenceVersionIdentifier, &r.Properties, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan result: %w", err)
	}
	return &r, nil
}
