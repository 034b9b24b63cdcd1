package deployment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
)

type fakeRepo struct {
	contents    map[string]*domain.CourseContent
	versions    map[string]*ExampleVersion
	versionsTag map[string]*ExampleVersion
	deployments map[string]*domain.CourseContentDeployment
	history     []domain.DeploymentHistory
	examples    map[string]bool
	exampleTags map[string]bool
	nextID      int
}

func (f *fakeRepo) GetCourseContent(_ context.Context, id string) (*domain.CourseContent, error) {
	return f.contents[id], nil
}
func (f *fakeRepo) ResolveExampleVersion(_ context.Context, id string) (*ExampleVersion, error) {
	return f.versions[id], nil
}
func (f *fakeRepo) ResolveExampleVersionByTag(_ context.Context, identifier, tag string) (*ExampleVersion, error) {
	return f.versionsTag[identifier+"@"+tag], nil
}
func (f *fakeRepo) GetDeployment(_ context.Context, contentID string) (*domain.CourseContentDeployment, error) {
	return f.deployments[contentID], nil
}
func (f *fakeRepo) CreateDeployment(_ context.Context, d domain.CourseContentDeployment) (*domain.CourseContentDeployment, error) {
	f.nextID++
	d.ID = "deploy-1"
	f.deployments[d.CourseContentID] = &d
	return &d, nil
}
func (f *fakeRepo) UpdateDeployment(_ context.Context, d domain.CourseContentDeployment) (*domain.CourseContentDeployment, error) {
	f.deployments[d.CourseContentID] = &d
	return &d, nil
}
func (f *fakeRepo) AppendHistory(_ context.Context, h domain.DeploymentHistory) error {
	f.history = append(f.history, h)
	return nil
}
func (f *fakeRepo) ExampleExists(_ context.Context, id string) (bool, error) {
	return f.examples[id], nil
}
func (f *fakeRepo) ExampleVersionExists(_ context.Context, id, tag string) (bool, error) {
	return f.exampleTags[id+"@"+tag], nil
}

func baseRepo() *fakeRepo {
	return &fakeRepo{
		contents:    map[string]*domain.CourseContent{"c1": {ID: "c1"}},
		versions:    map[string]*ExampleVersion{"v1": {ID: "v1", ExampleIdentifier: "ex1", VersionTag: "1.2"}},
		versionsTag: map[string]*ExampleVersion{},
		deployments: map[string]*domain.CourseContentDeployment{},
		examples:    map[string]bool{},
		exampleTags: map[string]bool{},
	}
}

func TestAssignCreatesNewDeployment(t *testing.T) {
	repo := baseRepo()
	e := New(repo)

	d, err := e.AssignExampleToContent(context.Background(), AssignInput{ContentID: "c1", ExampleVersionID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeploymentPending, d.DeploymentStatus)
	assert.Equal(t, "1.2.0", d.VersionTag)
	require.Len(t, repo.history, 1)
	assert.Equal(t, domain.DeploymentActionAssigned, repo.history[0].Action)
}

func TestAssignSameExampleSameVersionIsNoop(t *testing.T) {
	repo := baseRepo()
	e := New(repo)
	first, err := e.AssignExampleToContent(context.Background(), AssignInput{ContentID: "c1", ExampleVersionID: "v1"})
	require.NoError(t, err)

	second, err := e.AssignExampleToContent(context.Background(), AssignInput{ContentID: "c1", ExampleVersionID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.history, 1, "no-op reassignment should not append history")
}

func TestAssignRejectsIdentityChangeOnceDeployed(t *testing.T) {
	repo := baseRepo()
	repo.versions["v2"] = &ExampleVersion{ID: "v2", ExampleIdentifier: "ex2", VersionTag: "2.0"}
	repo.deployments["c1"] = &domain.CourseContentDeployment{
		ID: "deploy-1", CourseContentID: "c1", ExampleIdentifier: "ex1", VersionTag: "1.2.0",
		DeploymentStatus: domain.DeploymentDeployed,
	}
	e := New(repo)

	_, err := e.AssignExampleToContent(context.Background(), AssignInput{ContentID: "c1", ExampleVersionID: "v2"})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeDeployIdentity, apiErr.Code)
}

func TestUnassignRejectsWhileDeploying(t *testing.T) {
	repo := baseRepo()
	repo.deployments["c1"] = &domain.CourseContentDeployment{ID: "deploy-1", CourseContentID: "c1", DeploymentStatus: domain.DeploymentDeploying}
	e := New(repo)

	err := e.Unassign(context.Background(), "c1", "actor1")
	require.Error(t, err)
}

func TestValidateBatchReportsMissingExample(t *testing.T) {
	repo := baseRepo()
	repo.examples["ex1"] = true
	repo.exampleTags["ex1@1.0.0"] = true
	e := New(repo)

	results, err := e.ValidateBatch(context.Background(), []BatchItem{
		{ContentID: "c1", ExampleIdentifier: "ex1", VersionTag: "1.0.0"},
		{ContentID: "c2", ExampleIdentifier: "missing", VersionTag: "1.0.0"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].ExampleExists)
	assert.True(t, results[0].VersionExists)
	assert.Empty(t, results[0].ErrorMessage)
	assert.False(t, results[1].ExampleExists)
	assert.NotEmpty(t, results[1].ErrorMessage)
}

func TestNormalizeSemverExpandsShortTags(t *testing.T) {
	tag, err := normalizeSemver("1.2")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", tag)

	_, err = normalizeSemver("not-a-version")
	assert.Error(t, err)
}
