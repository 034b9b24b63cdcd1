package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/testscheduler"
)

type createTestRequest struct {
	ArtifactID        string `json:"artifact_id"`
	SubmissionGroupID string `json:"submission_group_id"`
	VersionIdentifier string `json:"version_identifier"`
}

// CreateTestAPI handles POST /tests, the §4.6 gating/submission entry point.
func (s *Server) CreateTestAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	var req createTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	if req.ArtifactID == "" && req.SubmissionGroupID == "" {
		writeError(w, r, apierr.BadRequest("artifact_id or submission_group_id is required"))
		return
	}

	courseID, err := s.testRequestCourseID(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	elevated := elevatedInCourse(p, courseID)
	member, err := s.courseMemberFor(r.Context(), p.UserID, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	courseMemberID := ""
	if member != nil {
		courseMemberID = member.ID
	}
	if courseMemberID == "" && !elevated {
		writeError(w, r, apierr.Forbidden("not a member of this course"))
		return
	}

	result, err := s.testScheduler.CreateTest(r.Context(), testscheduler.CreateTestRequest{
		ArtifactID:         req.ArtifactID,
		SubmissionGroupID:  req.SubmissionGroupID,
		VersionIdentifier:  req.VersionIdentifier,
		CourseMemberID:      courseMemberID,
		ElevatedCourseRole: elevated,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpResponseJSON(w, result, http.StatusOK)
}

// testRequestCourseID resolves the course a test request targets, so the
// handler can check course membership before handing off to the scheduler.
func (s *Server) testRequestCourseID(ctx context.Context, req createTestRequest) (string, error) {
	var groupID string
	if req.SubmissionGroupID != "" {
		groupID = req.SubmissionGroupID
	} else {
		artifact, err := s.store.GetSubmissionArtifact(ctx, req.ArtifactID)
		if err != nil {
			return "", apierr.Database(err, "load submission artifact")
		}
		if artifact == nil {
			return "", apierr.NotFound("SubmissionArtifact", req.ArtifactID)
		}
		groupID = artifact.SubmissionGroupID
	}

	group, err := s.store.GetSubmissionGroup(ctx, groupID)
	if err != nil {
		return "", apierr.Database(err, "load submission group")
	}
	if group == nil {
		return "", apierr.NotFound("SubmissionGroup", groupID)
	}
	return group.CourseID, nil
}

type testStatusResponse struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	StartedAt *string `json:"started_at,omitempty"`
}

// TestStatusAPI handles GET /tests/status/{result_id}.
func (s *Server) TestStatusAPI(w http.ResponseWriter, r *http.Request) {
	resultID := r.PathValue("result_id")

	result, err := s.store.FindResultByID(r.Context(), resultID)
	if err != nil {
		writeError(w, r, apierr.Database(err, "load result"))
		return
	}
	if result == nil {
		writeError(w, r, apierr.NotFound("Result", resultID))
		return
	}

	resp := testStatusResponse{ID: result.ID, Status: result.Status.String()}
	if result.StartedAt != nil {
		started := result.StartedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.StartedAt = &started
	}
	httpResponseJSON(w, resp, http.StatusOK)
}
