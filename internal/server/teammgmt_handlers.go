package server

import (
	"encoding/json"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
)

type joinGroupRequest struct {
	JoinCode string `json:"join_code"`
}

type joinGroupResponse struct {
	Status string `json:"status"`
}

// JoinSubmissionGroupAPI handles POST /submission-groups/{id}/join.
func (s *Server) JoinSubmissionGroupAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	groupID := r.PathValue("id")

	var req joinGroupRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
			return
		}
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

	member, err := s.courseMemberFor(r.Context(), p.UserID, group.CourseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if member == nil {
		writeError(w, r, apierr.Forbidden("not a member of this course"))
		return
	}

	joined, err := s.teammgmtSvc.Join(r.Context(), groupID, member.ID, req.JoinCode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := "joined"
	if joined.Pending {
		status = "pending_approval"
	}
	httpResponseJSON(w, joinGroupResponse{Status: status}, http.StatusOK)
}
