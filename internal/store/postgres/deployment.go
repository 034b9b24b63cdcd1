package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/computor-platform/computor-api/internal/deployment"
	"github.com/computor-platform/computor-api/internal/domain"
)

func (p *Postgres) ResolveExampleVersion(ctx context.Context, id string) (*deployment.ExampleVersion, error) {
	query, _, err := p.goqu.From(p.tableExampleVersions.As("ev")).
		Join(p.tableExamples.As("e"), goqu.On(goqu.I("e.id").Eq(goqu.I("ev.example_id")))).
		Select("ev.id", "e.identifier", "ev.version_tag").
		Where(goqu.I("ev.id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build resolve example version query: %w", err)
	}

	var ev deployment.ExampleVersion
	err = p.db.QueryRowContext(ctx, query).Scan(&ev.ID, &ev.ExampleIdentifier, &ev.VersionTag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve example version %q: %w", id, err)
	}
	return &ev, nil
}

func (p *Postgres) ResolveExampleVersionByTag(ctx context.Context, exampleIdentifier, versionTag string) (*deployment.ExampleVersion, error) {
	query, _, err := p.goqu.From(p.tableExampleVersions.As("ev")).
		Join(p.tableExamples.As("e"), goqu.On(goqu.I("e.id").Eq(goqu.I("ev.example_id")))).
		Select("ev.id", "e.identifier", "ev.version_tag").
		Where(goqu.I("e.identifier").Eq(exampleIdentifier), goqu.I("ev.version_tag").Eq(versionTag)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build resolve example version by tag query: %w", err)
	}

	var ev deployment.ExampleVersion
	err = p.db.QueryRowContext(ctx, query).Scan(&ev.ID, &ev.ExampleIdentifier, &ev.VersionTag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve example version by tag %q/%q: %w", exampleIdentifier, versionTag, err)
	}
	return &ev, nil
}

func (p *Postgres) ExampleExists(ctx context.Context, exampleIdentifier string) (bool, error) {
	query, _, err := p.goqu.From(p.tableExamples).
		Select(goqu.COUNT("*")).
		Where(goqu.I("identifier").Eq(exampleIdentifier)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build example exists query: %w", err)
	}

	var count int
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return false, fmt.Errorf("check example exists: %w", err)
	}
	return count > 0, nil
}

func (p *Postgres) ExampleVersionExists(ctx context.Context, exampleIdentifier, versionTag string) (bool, error) {
	query, _, err := p.goqu.From(p.tableExampleVersions.As("ev")).
		Join(p.tableExamples.As("e"), goqu.On(goqu.I("e.id").Eq(goqu.I("ev.example_id")))).
		Select(goqu.COUNT("*")).
		Where(goqu.I("e.identifier").Eq(exampleIdentifier), goqu.I("ev.version_tag").Eq(versionTag)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build example version exists query: %w", err)
	}

	var count int
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return false, fmt.Errorf("check example version exists: %w", err)
	}
	return count > 0, nil
}

func (p *Postgres) GetDeployment(ctx context.Context, contentID string) (*domain.CourseContentDeployment, error) {
	return p.getDeploymentWhere(ctx, goqu.I("course_content_id").Eq(contentID))
}

// GetCourseContentDeployment is the testscheduler.Repo name for the same
// lookup as GetDeployment.
func (p *Postgres) GetCourseContentDeployment(ctx context.Context, contentID string) (*domain.CourseContentDeployment, error) {
	return p.GetDeployment(ctx, contentID)
}

func (p *Postgres) getDeploymentWhere(ctx context.Context, expr goqu.Expression) (*domain.CourseContentDeployment, error) {
	query, _, err := p.goqu.From(p.tableDeployments).
		Select("id", "course_content_id", "example_version_id", "example_identifier", "version_tag",
			"deployment_status", "deployment_path", "version_identifier", "workflow_id", "created_at", "updated_at").
		Where(expr).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get deployment query: %w", err)
	}

	var d domain.CourseContentDeployment
	err = p.db.QueryRowContext(ctx, query).Scan(&d.ID, &d.CourseContentID, &d.ExampleVersionID, &d.ExampleIdentifier,
		&d.VersionTag, &d.DeploymentStatus, &d.DeploymentPath, &d.VersionIdentifier, &d.WorkflowID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return &d, nil
}

func (p *Postgres) CreateDeployment(ctx context.Context, d domain.CourseContentDeployment) (*domain.CourseContentDeployment, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableDeployments).Rows(goqu.Record{
		"id":                  id,
		"course_content_id":   d.CourseContentID,
		"example_version_id":  d.ExampleVersionID,
		"example_identifier":  d.ExampleIdentifier,
		"version_tag":         d.VersionTag,
		"deployment_status":   d.DeploymentStatus,
		"deployment_path":     d.DeploymentPath,
		"version_identifier":  d.VersionIdentifier,
		"workflow_id":         d.WorkflowID,
		"created_at":          now,
		"updated_at":          now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create deployment query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}

	d.ID = id
	d.CreatedAt, d.UpdatedAt = now, now
	return &d, nil
}

func (p *Postgres) UpdateDeployment(ctx context.Context, d domain.CourseContentDeployment) (*domain.CourseContentDeployment, error) {
	query, _, err := p.goqu.Update(p.tableDeployments).
		Set(goqu.Record{
			"example_version_id": d.ExampleVersionID,
			"example_identifier": d.ExampleIdentifier,
			"version_tag":        d.VersionTag,
			"deployment_status":  d.DeploymentStatus,
			"deployment_path":    d.DeploymentPath,
			"version_identifier": d.VersionIdentifier,
			"workflow_id":        d.WorkflowID,
			"updated_at":         time.Now().UTC(),
		}).
		Where(goqu.I("id").Eq(d.ID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update deployment query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("update deployment: %w", err)
	}
	return p.getDeploymentWhere(ctx, goqu.I("id").Eq(d.ID))
}

func (p *Postgres) AppendHistory(ctx context.Context, h domain.DeploymentHistory) error {
	id := ulid.Make().String()

	query, _, err := p.goqu.Insert(p.tableDeploymentHistory).Rows(goqu.Record{
		"id":                    id,
		"deployment_id":         h.DeploymentID,
		"action":                h.Action,
		"actor_user_id":         h.ActorUserID,
		"prior_example_version": h.PriorExampleVersion,
		"new_example_version":   h.NewExampleVersion,
		"message":               h.Message,
		"created_at":            time.Now().UTC(),
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build append deployment history query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("append deployment history: %w", err)
	}
	return nil
}

// ListDeploymentHistory returns every history entry for deploymentID, newest
// first, for the assign-example API's {deployment, history[]} response.
func (p *Postgres) ListDeploymentHistory(ctx context.Context, deploymentID string) ([]domain.DeploymentHistory, error) {
	query, _, err := p.goqu.From(p.tableDeploymentHistory).
		Select("id", "deployment_id", "action", "actor_user_id", "prior_example_version", "new_example_version", "message", "created_at").
		Where(goqu.I("deployment_id").Eq(deploymentID)).
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list deployment history query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deployment history: %w", err)
	}
	defer rows.Close()

	var out []domain.DeploymentHistory
	for rows.Next() {
		var h domain.DeploymentHistory
		if err := rows.Scan(&h.ID, &h.DeploymentID, &h.Action, &h.ActorUserID, &h.PriorExampleVersion, &h.NewExampleVersion, &h.Message, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deployment history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListDeploymentsByStatus is the deployment.ReleaseRepo extension the
// background release scheduler polls.
func (p *Postgres) ListDeploymentsByStatus(ctx context.Context, statuses ...domain.DeploymentStatus) ([]domain.CourseContentDeployment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query, _, err := p.goqu.From(p.tableDeployments).
		Select("id", "course_content_id", "example_version_id", "example_identifier", "version_tag",
			"deployment_status", "deployment_path", "version_identifier", "workflow_id", "created_at", "updated_at").
		Where(goqu.I("deployment_status").In(statuses)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list deployments by status query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deployments by status: %w", err)
	}
	defer rows.Close()

	var out []domain.CourseContentDeployment
	for rows.Next() {
		var d domain.CourseContentDeployment
		if err := rows.Scan(&d.ID, &d.CourseContentID, &d.ExampleVersionID, &d.ExampleIdentifier, &d.VersionTag,
			&d.DeploymentStatus, &d.DeploymentPath, &d.VersionIdentifier, &d.WorkflowID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
