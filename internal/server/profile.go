package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/authz"
)

// profileResourceCtx resolves the "user_id" authz needs to decide whether
// courseMemberID's profile belongs to the caller: it matches only if
// courseMemberID is one of the caller's own CourseMember rows.
func (s *Server) profileResourceCtx(ctx context.Context, callerUserID, courseMemberID string) (map[string]any, error) {
	members, err := s.store.ListCourseMemberships(ctx, callerUserID)
	if err != nil {
		return nil, apierr.Database(err, "list course memberships")
	}
	for _, m := range members {
		if m.ID == courseMemberID {
			return map[string]any{"user_id": callerUserID}, nil
		}
	}
	return map[string]any{"user_id": ""}, nil
}

// GetProfileAPI handles GET /profile?course_member_id={id}.
func (s *Server) GetProfileAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	courseMemberID := r.URL.Query().Get("course_member_id")
	if courseMemberID == "" {
		writeError(w, r, apierr.BadRequest("course_member_id is required"))
		return
	}

	resourceCtx, err := s.profileResourceCtx(r.Context(), p.UserID, courseMemberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	allowed, err := s.authzRegistry.CanPerform(r.Context(), authz.KindStudentProfile, p, authz.ActionGet, courseMemberID, resourceCtx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, apierr.Forbidden("not permitted to read this profile"))
		return
	}

	profile, err := s.profileSvc.Get(r.Context(), courseMemberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, profile, http.StatusOK)
}

type upsertProfileRequest struct {
	CourseMemberID string `json:"course_member_id"`
	Bio            string `json:"bio"`
	AvatarURL      string `json:"avatar_url"`
}

// UpsertProfileAPI handles PUT /profile.
func (s *Server) UpsertProfileAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	var req upsertProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	if req.CourseMemberID == "" {
		writeError(w, r, apierr.BadRequest("course_member_id is required"))
		return
	}

	resourceCtx, err := s.profileResourceCtx(r.Context(), p.UserID, req.CourseMemberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	allowed, err := s.authzRegistry.CanPerform(r.Context(), authz.KindStudentProfile, p, authz.ActionUpdate, req.CourseMemberID, resourceCtx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, apierr.Forbidden("not permitted to write this profile"))
		return
	}

	profile, err := s.profileSvc.Upsert(r.Context(), req.CourseMemberID, req.Bio, req.AvatarURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, profile, http.StatusOK)
}

// DeleteProfileAPI handles DELETE /profile?course_member_id={id}.
func (s *Server) DeleteProfileAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	courseMemberID := r.URL.Query().Get("course_member_id")
	if courseMemberID == "" {
		writeError(w, r, apierr.BadRequest("course_member_id is required"))
		return
	}

	resourceCtx, err := s.profileResourceCtx(r.Context(), p.UserID, courseMemberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	allowed, err := s.authzRegistry.CanPerform(r.Context(), authz.KindStudentProfile, p, authz.ActionDelete, courseMemberID, resourceCtx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, apierr.Forbidden("not permitted to delete this profile"))
		return
	}

	if err := s.profileSvc.Delete(r.Context(), courseMemberID); err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}
