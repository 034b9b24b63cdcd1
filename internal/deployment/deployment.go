// Package deployment implements the deployment engine (C7) from spec.md
// §4.7: assignment (DB-only), release-state reads, unassignment, and batch
// validation. The release phase itself (pending → deploying → deployed) is
// carried out by a workflow submitted through internal/taskexec;
// ReleaseScheduler (release_scheduler.go) polls pending and deploying rows,
// reads the workflow status, and writes the resulting status transition and
// history entry.
package deployment

import (
	"context"
	"fmt"
	"strings"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
)

// ExampleVersion is the subset of the example catalog's version metadata the
// engine needs to resolve an assignment.
type ExampleVersion struct {
	ID                string
	ExampleIdentifier string
	VersionTag        string
}

// Repo is the persistence slice the deployment engine needs.
type Repo interface {
	GetCourseContent(ctx context.Context, contentID string) (*domain.CourseContent, error)
	ResolveExampleVersion(ctx context.Context, id string) (*ExampleVersion, error)
	ResolveExampleVersionByTag(ctx context.Context, exampleIdentifier, versionTag string) (*ExampleVersion, error)
	GetDeployment(ctx context.Context, contentID string) (*domain.CourseContentDeployment, error)
	CreateDeployment(ctx context.Context, d domain.CourseContentDeployment) (*domain.CourseContentDeployment, error)
	UpdateDeployment(ctx context.Context, d domain.CourseContentDeployment) (*domain.CourseContentDeployment, error)
	AppendHistory(ctx context.Context, h domain.DeploymentHistory) error
	ExampleExists(ctx context.Context, exampleIdentifier string) (bool, error)
	ExampleVersionExists(ctx context.Context, exampleIdentifier, versionTag string) (bool, error)
}

type Engine struct {
	repo Repo
}

func New(repo Repo) *Engine {
	return &Engine{repo: repo}
}

// AssignInput identifies an example version either directly by id or by
// (identifier, tag), per §4.7 step 2.
type AssignInput struct {
	ContentID         string
	ExampleVersionID  string
	ExampleIdentifier string
	VersionTag        string
	ActorUserID       string
	Message           string
}

// AssignExampleToContent binds contentID to the resolved example version.
func (e *Engine) AssignExampleToContent(ctx context.Context, in AssignInput) (*domain.CourseContentDeployment, error) {
	content, err := e.repo.GetCourseContent(ctx, in.ContentID)
	if err != nil {
		return nil, apierr.Database(err, "load course content")
	}
	if content == nil {
		return nil, apierr.NotFound("CourseContent", in.ContentID)
	}

	version, err := e.resolveVersion(ctx, in)
	if err != nil {
		return nil, err
	}

	normalizedTag, err := normalizeSemver(version.VersionTag)
	if err != nil {
		return nil, apierr.BadRequest("invalid version tag %q: %v", version.VersionTag, err)
	}

	existing, err := e.repo.GetDeployment(ctx, in.ContentID)
	if err != nil {
		return nil, apierr.Database(err, "load existing deployment")
	}

	if existing == nil {
		created, err := e.repo.CreateDeployment(ctx, domain.CourseContentDeployment{
			CourseContentID:   in.ContentID,
			ExampleVersionID:  version.ID,
			ExampleIdentifier: version.ExampleIdentifier,
			VersionTag:        normalizedTag,
			DeploymentStatus:  domain.DeploymentPending,
		})
		if err != nil {
			return nil, apierr.Database(err, "create deployment")
		}
		if err := e.repo.AppendHistory(ctx, domain.DeploymentHistory{
			DeploymentID:      created.ID,
			Action:            domain.DeploymentActionAssigned,
			ActorUserID:       in.ActorUserID,
			NewExampleVersion: version.ID,
			Message:           in.Message,
		}); err != nil {
			return nil, apierr.Database(err, "append deployment history")
		}
		return created, nil
	}

	sameExample := existing.ExampleIdentifier == version.ExampleIdentifier
	sameVersion := existing.VersionTag == normalizedTag
	if sameExample && sameVersion {
		return existing, nil
	}

	if existing.DeploymentStatus == domain.DeploymentDeployed && !sameExample {
		return nil, apierr.DeployIdentityViolation("only version bumps are allowed once a content is deployed; assigned example identifier may not change")
	}

	action := domain.DeploymentActionUpdated
	if !sameExample {
		action = domain.DeploymentActionReassigned
	}

	prior := existing.ExampleVersionID
	existing.ExampleVersionID = version.ID
	existing.ExampleIdentifier = version.ExampleIdentifier
	existing.VersionTag = normalizedTag
	existing.DeploymentStatus = domain.DeploymentPending

	updated, err := e.repo.UpdateDeployment(ctx, *existing)
	if err != nil {
		return nil, apierr.Database(err, "update deployment")
	}
	if err := e.repo.AppendHistory(ctx, domain.DeploymentHistory{
		DeploymentID:        updated.ID,
		Action:              action,
		ActorUserID:         in.ActorUserID,
		PriorExampleVersion: prior,
		NewExampleVersion:   version.ID,
		Message:             in.Message,
	}); err != nil {
		return nil, apierr.Database(err, "append deployment history")
	}
	return updated, nil
}

// Unassign clears the deployment reference, only allowed while the
// deployment is not mid-release or already live.
func (e *Engine) Unassign(ctx context.Context, contentID, actorUserID string) error {
	existing, err := e.repo.GetDeployment(ctx, contentID)
	if err != nil {
		return apierr.Database(err, "load existing deployment")
	}
	if existing == nil {
		return apierr.NotFound("CourseContentDeployment", contentID)
	}
	if existing.DeploymentStatus == domain.DeploymentDeploying || existing.DeploymentStatus == domain.DeploymentDeployed {
		return apierr.Conflict("cannot unassign a deployment that is deploying or already deployed")
	}

	prior := existing.ExampleVersionID
	existing.ExampleVersionID = ""
	existing.ExampleIdentifier = ""
	existing.VersionTag = ""
	existing.DeploymentStatus = domain.DeploymentUnassigned

	updated, err := e.repo.UpdateDeployment(ctx, *existing)
	if err != nil {
		return apierr.Database(err, "update deployment")
	}
	return e.repo.AppendHistory(ctx, domain.DeploymentHistory{
		DeploymentID:        updated.ID,
		Action:              domain.DeploymentActionUnassigned,
		ActorUserID:         actorUserID,
		PriorExampleVersion: prior,
	})
}

// BatchItem is one (content_id, example_identifier, version_tag) entry in a
// batch validation request.
type BatchItem struct {
	ContentID         string
	ExampleIdentifier string
	VersionTag        string
}

// BatchItemResult reports whether an item's references resolve.
type BatchItemResult struct {
	ContentID      string
	ExampleExists  bool
	VersionExists  bool
	ErrorMessage   string
}

// ValidateBatch checks every item's identifier and tag existence with
// per-item lookups: one ExampleExists query per item, plus one
// ExampleVersionExists query when the example exists. The lookups are not
// combined into set queries across the batch.
func (e *Engine) ValidateBatch(ctx context.Context, items []BatchItem) ([]BatchItemResult, error) {
	results := make([]BatchItemResult, 0, len(items))
	for _, item := range items {
		exampleExists, err := e.repo.ExampleExists(ctx, item.ExampleIdentifier)
		if err != nil {
			return nil, apierr.Database(err, "check example existence")
		}
		versionExists := false
		if exampleExists {
			versionExists, err = e.repo.ExampleVersionExists(ctx, item.ExampleIdentifier, item.VersionTag)
			if err != nil {
				return nil, apierr.Database(err, "check example version existence")
			}
		}

		result := BatchItemResult{ContentID: item.ContentID, ExampleExists: exampleExists, VersionExists: versionExists}
		switch {
		case !exampleExists:
			result.ErrorMessage = fmt.Sprintf("example %q does not exist", item.ExampleIdentifier)
		case !versionExists:
			result.ErrorMessage = fmt.Sprintf("example %q has no version %q", item.ExampleIdentifier, item.VersionTag)
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) resolveVersion(ctx context.Context, in AssignInput) (*ExampleVersion, error) {
	if in.ExampleVersionID != "" {
		v, err := e.repo.ResolveExampleVersion(ctx, in.ExampleVersionID)
		if err != nil {
			return nil, apierr.Database(err, "resolve example version")
		}
		if v == nil {
			return nil, apierr.NotFound("ExampleVersion", in.ExampleVersionID)
		}
		return v, nil
	}

	if in.ExampleIdentifier == "" || in.VersionTag == "" {
		return nil, apierr.BadRequest("either example_version_id or (example_identifier, version_tag) is required")
	}
	v, err := e.repo.ResolveExampleVersionByTag(ctx, in.ExampleIdentifier, in.VersionTag)
	if err != nil {
		return nil, apierr.Database(err, "resolve example version by tag")
	}
	if v == nil {
		return nil, apierr.NotFound("ExampleVersion", in.ExampleIdentifier+"@"+in.VersionTag)
	}
	return v, nil
}

// normalizeSemver expands short tags like "1.2" into full "1.2.0" semver,
// rejecting anything that doesn't parse as dot-separated non-negative
// integers.
func normalizeSemver(tag string) (string, error) {
	parts := strings.Split(tag, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return "", fmt.Errorf("expected 1-3 dot-separated numeric components")
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("empty version component")
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return "", fmt.Errorf("non-numeric version component %q", p)
			}
		}
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts, "."), nil
}
