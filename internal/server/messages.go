package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/authz"
	"github.com/computor-platform/computor-api/internal/message"
	"github.com/computor-platform/computor-api/internal/principal"
)

// ListMessagesAPI handles GET /messages: every message the principal's
// authz.QueryRestriction makes visible, per §4.8's visibility union.
func (s *Server) ListMessagesAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	restriction, err := s.authzRegistry.BuildQuery(r.Context(), authz.KindMessage, p, authz.ActionList)
	if err != nil {
		writeError(w, r, apierr.Internal(err, "build message visibility"))
		return
	}

	msgs, err := s.messageSvc.List(r.Context(), restriction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, msgs, http.StatusOK)
}

type createMessageRequest struct {
	ParentID          *string `json:"parent_id"`
	TargetKind        string  `json:"target_kind"`
	UserID            *string `json:"user_id"`
	CourseMemberID    *string `json:"course_member_id"`
	SubmissionGroupID *string `json:"submission_group_id"`
	CourseGroupID     *string `json:"course_group_id"`
	CourseContentID   *string `json:"course_content_id"`
	CourseID          *string `json:"course_id"`
	Title             string  `json:"title"`
	Content           string  `json:"content"`
}

// CreateMessageAPI handles POST /messages.
func (s *Server) CreateMessageAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}

	resourceCtx, err := s.createMessageResourceCtx(r.Context(), p.UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ok, err := s.authzRegistry.CanPerform(r.Context(), authz.KindMessage, p, authz.ActionCreate, "", resourceCtx)
	if err != nil {
		writeError(w, r, apierr.Internal(err, "evaluate message create permission"))
		return
	}
	if !ok {
		writeError(w, r, apierr.Forbidden("not permitted to message this target"))
		return
	}

	created, err := s.messageSvc.Create(r.Context(), message.CreateInput{
		ParentID:          req.ParentID,
		AuthorUserID:      p.UserID,
		UserID:            req.UserID,
		CourseMemberID:    req.CourseMemberID,
		SubmissionGroupID: req.SubmissionGroupID,
		CourseGroupID:     req.CourseGroupID,
		CourseContentID:   req.CourseContentID,
		CourseID:          req.CourseID,
		Title:             req.Title,
		Content:           req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, created, http.StatusCreated)
}

// createMessageResourceCtx resolves the authz resourceCtx for a new message's
// primary target, so CanPerform can run before the service layer persists it.
func (s *Server) createMessageResourceCtx(ctx context.Context, authorUserID string, req createMessageRequest) (map[string]any, error) {
	rc := map[string]any{"target_kind": req.TargetKind}

	switch req.TargetKind {
	case "submission_group":
		if req.SubmissionGroupID == nil {
			return nil, apierr.BadRequest("submission_group_id is required for target_kind submission_group")
		}
		group, err := s.store.GetSubmissionGroup(ctx, *req.SubmissionGroupID)
		if err != nil {
			return nil, apierr.Database(err, "load submission group")
		}
		if group == nil {
			return nil, apierr.NotFound("SubmissionGroup", *req.SubmissionGroupID)
		}
		rc["course_id"] = group.CourseID
		membership, err := s.store.GetGroupMembership(ctx, group.ID, authorUserID)
		if err != nil {
			return nil, apierr.Database(err, "check group membership")
		}
		rc["is_own_submission_group_member"] = membership != nil

	case "course_content":
		if req.CourseContentID == nil {
			return nil, apierr.BadRequest("course_content_id is required for target_kind course_content")
		}
		content, err := s.store.GetCourseContent(ctx, *req.CourseContentID)
		if err != nil {
			return nil, apierr.Database(err, "load course content")
		}
		if content == nil {
			return nil, apierr.NotFound("CourseContent", *req.CourseContentID)
		}
		rc["course_id"] = content.CourseID

	case "course":
		if req.CourseID == nil {
			return nil, apierr.BadRequest("course_id is required for target_kind course")
		}
		rc["course_id"] = *req.CourseID

	case "course_group":
		// deny unconditionally per the messageHandler's read-only rule.

	default:
		// user_id / course_member_id targets: not implemented, deny.
	}
	return rc, nil
}

type updateMessageRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateMessageAPI handles PUT /messages/{id}.
func (s *Server) UpdateMessageAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	id := r.PathValue("id")

	existing, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		writeError(w, r, apierr.Database(err, "load message"))
		return
	}
	if existing == nil {
		writeError(w, r, apierr.NotFound("Message", id))
		return
	}

	ok, err := s.authzRegistry.CanPerform(r.Context(), authz.KindMessage, p, authz.ActionUpdate, id,
		map[string]any{"author_user_id": existing.AuthorUserID})
	if err != nil {
		writeError(w, r, apierr.Internal(err, "evaluate message update permission"))
		return
	}
	if !ok {
		writeError(w, r, apierr.Forbidden("only the author may edit this message"))
		return
	}

	var req updateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}

	updated, err := s.messageSvc.Update(r.Context(), id, req.Title, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, updated, http.StatusOK)
}

// DeleteMessageAPI handles DELETE /messages/{id}.
func (s *Server) DeleteMessageAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	id := r.PathValue("id")

	existing, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		writeError(w, r, apierr.Database(err, "load message"))
		return
	}
	if existing == nil {
		writeError(w, r, apierr.NotFound("Message", id))
		return
	}

	ok, err := s.authzRegistry.CanPerform(r.Context(), authz.KindMessage, p, authz.ActionDelete, id,
		map[string]any{"author_user_id": existing.AuthorUserID})
	if err != nil {
		writeError(w, r, apierr.Internal(err, "evaluate message delete permission"))
		return
	}
	if !ok {
		writeError(w, r, apierr.Forbidden("only the author may delete this message"))
		return
	}

	if err := s.messageSvc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}

// MarkMessageReadAPI handles POST /messages/{id}/read.
func (s *Server) MarkMessageReadAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	id := r.PathValue("id")

	if err := s.authorizeMessageRead(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.messageSvc.MarkRead(r.Context(), id, p.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, map[string]string{"status": "read"}, http.StatusOK)
}

// MarkMessageUnreadAPI handles DELETE /messages/{id}/read.
func (s *Server) MarkMessageUnreadAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	id := r.PathValue("id")

	if err := s.authorizeMessageRead(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.messageSvc.MarkUnread(r.Context(), id, p.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, map[string]string{"status": "unread"}, http.StatusOK)
}

// authorizeMessageRead checks ActionGet on the message before letting a
// principal toggle their own read marker on it.
func (s *Server) authorizeMessageRead(ctx context.Context, p principal.Principal, id string) error {
	m, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return apierr.Database(err, "load message")
	}
	if m == nil {
		return apierr.NotFound("Message", id)
	}

	rc := map[string]any{"author_user_id": m.AuthorUserID}
	if m.UserID != nil {
		rc["target_user_id"] = *m.UserID
	}
	if m.CourseID != nil {
		rc["course_id"] = *m.CourseID
	}
	if m.SubmissionGroupID != nil {
		membership, err := s.store.GetGroupMembership(ctx, *m.SubmissionGroupID, p.UserID)
		if err != nil {
			return apierr.Database(err, "check group membership")
		}
		rc["is_own_submission_group_member"] = membership != nil
	}

	ok, err := s.authzRegistry.CanPerform(ctx, authz.KindMessage, p, authz.ActionGet, id, rc)
	if err != nil {
		return apierr.Internal(err, "evaluate message read permission")
	}
	if !ok {
		return apierr.Forbidden("not permitted to view this message")
	}
	return nil
}
