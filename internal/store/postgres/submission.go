package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/computor-platform/computor-api/internal/authz"
	"github.com/computor-platform/computor-api/internal/domain"
)

func (p *Postgres) CountSubmissions(ctx context.Context, groupID string) (int, error) {
	query, _, err := p.goqu.From(p.tableSubmissionArtifacts).
		Select(goqu.COUNT("*")).
		Where(goqu.I("submission_group_id").Eq(groupID)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count submissions query: %w", err)
	}

	var count int
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

func (p *Postgres) ListGroupMemberUserIDs(ctx context.Context, groupID string) ([]string, error) {
	query, _, err := p.goqu.From(p.tableSubmissionGroupMembers).
		Join(p.tableCourseMembers, goqu.On(goqu.I("course_members.id").Eq(goqu.I("submission_group_members.course_member_id")))).
		Select("course_members.user_id").
		Where(goqu.I("submission_group_members.submission_group_id").Eq(groupID), goqu.I("submission_group_members.pending").Eq(false)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list group member user ids query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list group member user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) CreateSubmissionArtifact(ctx context.Context, artifact domain.SubmissionArtifact) (*domain.SubmissionArtifact, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	if artifact.Properties == "" {
		artifact.Properties = "{}"
	}

	query, _, err := p.goqu.Insert(p.tableSubmissionArtifacts).Rows(goqu.Record{
		"id":                   id,
		"submission_group_id":  artifact.SubmissionGroupID,
		"bucket":               artifact.Bucket,
		"object_key":           artifact.ObjectKey,
		"version_identifier":   artifact.VersionIdentifier,
		"filename":             artifact.Filename,
		"content_type":         artifact.ContentType,
		"size_bytes":           artifact.SizeBytes,
		"submit":               artifact.Submit,
		"uploaded_by_user_id":  artifact.UploadedByUserID,
		"properties":           artifact.Properties,
		"created_at":           now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create submission artifact query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create submission artifact: %w", err)
	}

	artifact.ID = id
	artifact.CreatedAt = now
	return &artifact, nil
}

func (p *Postgres) GetSubmissionArtifact(ctx context.Context, id string) (*domain.SubmissionArtifact, error) {
	return p.getSubmissionArtifactWhere(ctx, goqu.I("id").Eq(id))
}

func (p *Postgres) GetSubmissionArtifactByID(ctx context.Context, id string) (*domain.SubmissionArtifact, error) {
	return p.getSubmissionArtifactWhere(ctx, goqu.I("id").Eq(id))
}

// GetLatestArtifact returns the most recently uploaded artifact for the
// group, regardless of version.
func (p *Postgres) GetLatestArtifact(ctx context.Context, groupID string) (*domain.SubmissionArtifact, error) {
	query, _, err := p.goqu.From(p.tableSubmissionArtifacts).
		Select("id", "submission_group_id", "bucket", "object_key", "version_identifier", "filename", "content_type", "size_bytes", "submit", "uploaded_by_user_id", "properties", "created_at").
		Where(goqu.I("submission_group_id").Eq(groupID)).
		Order(goqu.I("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get latest artifact query: %w", err)
	}
	return p.scanOptionalArtifact(ctx, query)
}

// GetArtifactByVersion returns the artifact for the group matching
// versionIdentifier exactly.
func (p *Postgres) GetArtifactByVersion(ctx context.Context, groupID, versionIdentifier string) (*domain.SubmissionArtifact, error) {
	query, _, err := p.goqu.From(p.tableSubmissionArtifacts).
		Select("id", "submission_group_id", "bucket", "object_key", "version_identifier", "filename", "content_type", "size_bytes", "submit", "uploaded_by_user_id", "properties", "created_at").
		Where(goqu.I("submission_group_id").Eq(groupID), goqu.I("version_identifier").Eq(versionIdentifier)).
		Order(goqu.I("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get artifact by version query: %w", err)
	}
	return p.scanOptionalArtifact(ctx, query)
}

func (p *Postgres) getSubmissionArtifactWhere(ctx context.Context, expr goqu.Expression) (*domain.SubmissionArtifact, error) {
	query, _, err := p.goqu.From(p.tableSubmissionArtifacts).
		Select("id", "submission_group_id", "bucket", "object_key", "version_identifier", "filename", "content_type", "size_bytes", "submit", "uploaded_by_user_id", "properties", "created_at").
		Where(expr).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get submission artifact query: %w", err)
	}
	return p.scanOptionalArtifact(ctx, query)
}

func (p *Postgres) scanOptionalArtifact(ctx context.Context, query string) (*domain.SubmissionArtifact, error) {
	var a domain.SubmissionArtifact
	err := p.db.QueryRowContext(ctx, query).Scan(&a.ID, &a.SubmissionGroupID, &a.Bucket, &a.ObjectKey, &a.VersionIdentifier,
		&a.Filename, &a.ContentType, &a.SizeBytes, &a.Submit, &a.UploadedByUserID, &a.Properties, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission artifact: %w", err)
	}
	return &a, nil
}

// ListUngradedArtifacts returns submission artifacts with no SubmissionGrade
// row, narrowed to the courses restriction.CourseIDIn names (or denied/
// unrestricted per the query-restriction algebra from internal/authz).
func (p *Postgres) ListUngradedArtifacts(ctx context.Context, restriction authz.QueryRestriction) ([]domain.SubmissionArtifact, error) {
	ds := p.goqu.From(p.tableSubmissionArtifacts.As("sa")).
		Join(p.tableSubmissionGroups.As("sg"), goqu.On(goqu.I("sg.id").Eq(goqu.I("sa.submission_group_id")))).
		LeftJoin(p.tableSubmissionGrades.As("grd"), goqu.On(goqu.I("grd.submission_artifact_id").Eq(goqu.I("sa.id")))).
		Select("sa.id", "sa.submission_group_id", "sa.bucket", "sa.object_key", "sa.version_identifier",
			"sa.filename", "sa.content_type", "sa.size_bytes", "sa.submit", "sa.uploaded_by_user_id", "sa.properties", "sa.created_at").
		Where(goqu.I("grd.id").IsNull())

	ds, denied := applyCourseRestriction(ds, "sg.course_id", restriction)
	if denied {
		return nil, nil
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list ungraded artifacts query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list ungraded artifacts: %w", err)
	}
	defer rows.Close()

	var out []domain.SubmissionArtifact
	for rows.Next() {
		var a domain.SubmissionArtifact
		if err := rows.Scan(&a.ID, &a.SubmissionGroupID, &a.Bucket, &a.ObjectKey, &a.VersionIdentifier,
			&a.Filename, &a.ContentType, &a.SizeBytes, &a.Submit, &a.UploadedByUserID, &a.Properties, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ungraded artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateGrade(ctx context.Context, g domain.SubmissionGrade) (*domain.SubmissionGrade, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableSubmissionGrades).Rows(goqu.Record{
		"id":                      id,
		"submission_artifact_id":  g.SubmissionArtifactID,
		"author_user_id":          g.AuthorUserID,
		"grade":                   g.Grade,
		"status":                  g.Status,
		"comment":                 g.Comment,
		"created_at":              now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create submission grade query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create submission grade: %w", err)
	}

	g.ID = id
	g.CreatedAt = now
	return &g, nil
}
