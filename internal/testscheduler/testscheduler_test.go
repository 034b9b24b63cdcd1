package testscheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/taskexec"
	"github.com/computor-platform/computor-api/internal/taskexec/fake"
)

type fakeRepo struct {
	artifacts   map[string]*domain.SubmissionArtifact
	groups      map[string]*domain.SubmissionGroup
	contents    map[string]*domain.CourseContent
	types       map[string]*domain.CourseContentType
	deployments map[string]*domain.CourseContentDeployment
	members     map[string]bool
	active      map[string]*domain.Result
	finished    map[string]*domain.Result
	created     []domain.Result
	statusCalls []statusUpdate
}

type statusUpdate struct {
	resultID string
	status   domain.ResultStatus
}

func (f *fakeRepo) GetSubmissionArtifact(_ context.Context, id string) (*domain.SubmissionArtifact, error) {
	return f.artifacts[id], nil
}
func (f *fakeRepo) GetLatestArtifact(_ context.Context, groupID string) (*domain.SubmissionArtifact, error) {
	for _, a := range f.artifacts {
		if a.SubmissionGroupID == groupID {
			return a, nil
		}
	}
	return nil, nil
}
func (f *fakeRepo) GetArtifactByVersion(_ context.Context, groupID, version string) (*domain.SubmissionArtifact, error) {
	for _, a := range f.artifacts {
		if a.SubmissionGroupID == groupID && a.VersionIdentifier == version {
			return a, nil
		}
	}
	return nil, nil
}
func (f *fakeRepo) GetSubmissionGroup(_ context.Context, id string) (*domain.SubmissionGroup, error) {
	return f.groups[id], nil
}
func (f *fakeRepo) GetCourseContent(_ context.Context, id string) (*domain.CourseContent, error) {
	return f.contents[id], nil
}
func (f *fakeRepo) GetCourseContentType(_ context.Context, id string) (*domain.CourseContentType, error) {
	return f.types[id], nil
}
func (f *fakeRepo) GetCourseContentDeployment(_ context.Context, contentID string) (*domain.CourseContentDeployment, error) {
	return f.deployments[contentID], nil
}
func (f *fakeRepo) IsGroupMember(_ context.Context, groupID, courseMemberID string) (bool, error) {
	return f.members[groupID+"/"+courseMemberID], nil
}
func (f *fakeRepo) FindActiveResult(_ context.Context, artifactID, courseMemberID string) (*domain.Result, error) {
	return f.active[artifactID+"/"+courseMemberID], nil
}
func (f *fakeRepo) FindFinishedResult(_ context.Context, courseMemberID, contentID, version string) (*domain.Result, error) {
	return f.finished[courseMemberID+"/"+contentID+"/"+version], nil
}
func (f *fakeRepo) CountTestRuns(_ context.Context, groupID string) (int, error) {
	return len(f.created), nil
}
func (f *fakeRepo) CreateResult(_ context.Context, r domain.Result) (*domain.Result, error) {
	r.ID = "result-new"
	f.created = append(f.created, r)
	return &r, nil
}
func (f *fakeRepo) UpdateResultStatus(_ context.Context, resultID string, status domain.ResultStatus, grade *float64, resultJSON, logText string) error {
	f.statusCalls = append(f.statusCalls, statusUpdate{resultID: resultID, status: status})
	return nil
}

func baseRepo() *fakeRepo {
	return &fakeRepo{
		artifacts: map[string]*domain.SubmissionArtifact{
			"art1": {ID: "art1", SubmissionGroupID: "grp1", VersionIdentifier: "v1", Bucket: "sg-grp1", ObjectKey: "submission-1/a.zip"},
		},
		groups: map[string]*domain.SubmissionGroup{
			"grp1": {ID: "grp1", CourseContentID: "content1"},
		},
		contents: map[string]*domain.CourseContent{
			"content1": {ID: "content1", CourseContentTypeID: "type1"},
		},
		types: map[string]*domain.CourseContentType{
			"type1": {ID: "type1", ExecutionBackendID: "backend1"},
		},
		deployments: map[string]*domain.CourseContentDeployment{
			"content1": {CourseContentID: "content1", DeploymentPath: "path/to/ref", VersionIdentifier: "ref-v1"},
		},
		members:  map[string]bool{"grp1/member1": true},
		active:   map[string]*domain.Result{},
		finished: map[string]*domain.Result{},
	}
}

func TestCreateTestHappyPath(t *testing.T) {
	repo := baseRepo()
	exec := fake.New()
	s := New(repo, exec)

	result, err := s.CreateTest(context.Background(), CreateTestRequest{
		ArtifactID:     "art1",
		CourseMemberID: "member1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultScheduled, result.Status)
	assert.Equal(t, "content1", result.CourseContentID)
	assert.Len(t, repo.created, 1)
}

func TestCreateTestRejectsNonMember(t *testing.T) {
	repo := baseRepo()
	s := New(repo, fake.New())

	_, err := s.CreateTest(context.Background(), CreateTestRequest{
		ArtifactID:     "art1",
		CourseMemberID: "stranger",
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CategoryAuthorization, apiErr.Category)
}

func TestCreateTestRejectsAlreadyFinished(t *testing.T) {
	repo := baseRepo()
	repo.finished["member1/content1/v1"] = &domain.Result{ID: "old", Status: domain.ResultFinished}
	s := New(repo, fake.New())

	_, err := s.CreateTest(context.Background(), CreateTestRequest{
		ArtifactID:     "art1",
		CourseMemberID: "member1",
	})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CategoryConflict, apiErr.Category)
}

func TestCreateTestRejectsMissingDeployment(t *testing.T) {
	repo := baseRepo()
	delete(repo.deployments, "content1")
	s := New(repo, fake.New())

	_, err := s.CreateTest(context.Background(), CreateTestRequest{
		ArtifactID:     "art1",
		CourseMemberID: "member1",
	})
	require.Error(t, err)
}

func TestCreateTestNoNewRunWhileWorkflowInFlight(t *testing.T) {
	repo := baseRepo()

	exec := fake.New()
	exec.OnSubmit = func(in taskexec.SubmitTaskInput) taskexec.TaskResult {
		return taskexec.TaskResult{Status: taskexec.StatusRunning}
	}
	// Pre-register the in-flight workflow id as running so reconcile finds it.
	workflowID, err := exec.SubmitTask(context.Background(), taskexec.SubmitTaskInput{})
	require.NoError(t, err)
	repo.active["art1/member1"] = &domain.Result{ID: "inflight", Status: domain.ResultRunning, TestSystemID: workflowID}

	s := New(repo, exec)
	result, err := s.CreateTest(context.Background(), CreateTestRequest{
		ArtifactID:     "art1",
		CourseMemberID: "member1",
	})
	require.NoError(t, err)
	assert.Equal(t, "inflight", result.ID)
	assert.Empty(t, repo.created)
}

func TestReconcileMarksFailedWorkflowAsFailed(t *testing.T) {
	repo := baseRepo()

	exec := fake.New()
	exec.OnSubmit = func(in taskexec.SubmitTaskInput) taskexec.TaskResult {
		return taskexec.TaskResult{Status: taskexec.StatusFailed}
	}
	workflowID, err := exec.SubmitTask(context.Background(), taskexec.SubmitTaskInput{})
	require.NoError(t, err)
	stale := &domain.Result{ID: "stale-result", Status: domain.ResultRunning, TestSystemID: workflowID}
	repo.active["art1/member1"] = stale

	s := New(repo, exec)
	reconciled, err := s.reconcile(context.Background(), stale)
	require.NoError(t, err)
	assert.Nil(t, reconciled)

	require.Len(t, repo.statusCalls, 1)
	assert.Equal(t, "stale-result", repo.statusCalls[0].resultID)
	assert.Equal(t, domain.ResultFailed, repo.statusCalls[0].status)
}
