package server

import (
	"encoding/json"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/authz"
	"github.com/computor-platform/computor-api/internal/domain"
)

// ListUngradedAPI handles GET /grading/ungraded: the tutor/lecturer grading
// queue from §3.6, narrowed to the courses the caller holds at least the
// tutor role in.
func (s *Server) ListUngradedAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	restriction := authz.QueryRestriction{CourseIDIn: p.Claims.CourseIDsAtLeast(domain.CourseRoleTutor)}
	if len(restriction.CourseIDIn) == 0 {
		writeError(w, r, apierr.Forbidden("tutor role required in at least one course"))
		return
	}

	artifacts, err := s.gradingQueue.ListUngraded(r.Context(), restriction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, artifacts, http.StatusOK)
}

type createGradeRequest struct {
	Grade   float64            `json:"grade"`
	Status  domain.GradeStatus `json:"status"`
	Comment string             `json:"comment"`
}

// CreateGradeAPI handles POST /grading/{artifact_id}.
func (s *Server) CreateGradeAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	artifactID := r.PathValue("artifact_id")

	var req createGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}

	artifact, err := s.store.GetSubmissionArtifact(r.Context(), artifactID)
	if err != nil {
		writeError(w, r, apierr.Database(err, "load submission artifact"))
		return
	}
	if artifact == nil {
		writeError(w, r, apierr.NotFound("SubmissionArtifact", artifactID))
		return
	}
	group, err := s.store.GetSubmissionGroup(r.Context(), artifact.SubmissionGroupID)
	if err != nil {
		writeError(w, r, apierr.Database(err, "load submission group"))
		return
	}
	if group == nil {
		writeError(w, r, apierr.NotFound("SubmissionGroup", artifact.SubmissionGroupID))
		return
	}
	if !elevatedInCourse(p, group.CourseID) {
		writeError(w, r, apierr.Forbidden("tutor role required to grade submissions in this course"))
		return
	}

	grade, err := s.gradingQueue.Grade(r.Context(), artifactID, p.UserID, req.Grade, req.Status, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, grade, http.StatusCreated)
}
