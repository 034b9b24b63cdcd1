package server

import (
	"io"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/submission"
)

type uploadResponse struct {
	ArtifactIDs       []string `json:"artifact_ids"`
	TotalSize         int64    `json:"total_size"`
	FilesCount        int      `json:"files_count"`
	VersionIdentifier string   `json:"version_identifier"`
}

// UploadSubmissionAPI handles POST /submissions/{group_id}/upload: a
// multipart ZIP upload validated and stored per §4.4.
func (s *Server) UploadSubmissionAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	groupID := r.PathValue("group_id")

	if err := r.ParseMultipartForm(s.config.Auth.MaxUploadBytes); err != nil {
		writeError(w, r, apierr.UploadInvalid("invalid multipart upload: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apierr.UploadInvalid("missing file field: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, apierr.UploadInvalid("read uploaded file: %v", err))
		return
	}

	group, err := s.store.GetSubmissionGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, r, apierr.Database(err, "load submission group"))
		return
	}
	if group == nil {
		writeError(w, r, apierr.NotFound("SubmissionGroup", groupID))
		return
	}

	elevated := elevatedInCourse(p, group.CourseID)
	member, err := s.courseMemberFor(r.Context(), p.UserID, group.CourseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if member == nil && !elevated {
		writeError(w, r, apierr.Forbidden("not a member of this course"))
		return
	}
	courseMemberID := ""
	if member != nil {
		courseMemberID = member.ID
	}

	result, err := s.submissionSvc.Upload(r.Context(), submission.UploadRequest{
		SubmissionGroupID:  groupID,
		CourseMemberID:     courseMemberID,
		UploaderUserID:     p.UserID,
		FileBytes:          data,
		Filename:           header.Filename,
		ContentType:        header.Header.Get("Content-Type"),
		VersionIdentifier:  r.FormValue("version_identifier"),
		Submit:             r.FormValue("submit") == "true",
		ElevatedCourseRole: elevated,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpResponseJSON(w, uploadResponse{
		ArtifactIDs:       []string{result.ArtifactID},
		TotalSize:         result.SizeBytes,
		FilesCount:        1,
		VersionIdentifier: result.VersionIdentifier,
	}, http.StatusOK)
}
