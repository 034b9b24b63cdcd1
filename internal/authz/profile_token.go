package authz

import (
	"context"

	"github.com/computor-platform/computor-api/internal/principal"
)

// studentProfileHandler: self, or any general claim for the action; create
// and update are general-only (no self-create path — profiles are created
// alongside CourseMember).
type studentProfileHandler struct{}

func NewStudentProfileHandler() Handler {
	return &studentProfileHandler{}
}

func (h *studentProfileHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	if p.Claims.HasGeneral(string(KindStudentProfile), string(action)) {
		return true, nil
	}
	if action == ActionGet {
		ownerUserID, _ := resourceCtx["user_id"].(string)
		return ownerUserID == p.UserID, nil
	}
	return false, nil
}

func (h *studentProfileHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	if p.Claims.HasGeneral(string(KindStudentProfile), string(action)) {
		return QueryRestriction{Unrestricted: true}, nil
	}
	if action == ActionGet {
		owner := p.UserID
		return QueryRestriction{OwnerUserID: &owner}, nil
	}
	return QueryRestriction{Deny: true}, nil
}

// apiTokenHandler: self or admin for get/list/create/delete; admin-only
// update (tokens aren't editable by their owner beyond revoke, which is a
// delete).
type apiTokenHandler struct{}

func NewApiTokenHandler() Handler {
	return &apiTokenHandler{}
}

func (h *apiTokenHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	if action == ActionUpdate {
		return false, nil
	}
	ownerUserID, _ := resourceCtx["user_id"].(string)
	return ownerUserID == p.UserID, nil
}

func (h *apiTokenHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	if action == ActionUpdate {
		return QueryRestriction{Deny: true}, nil
	}
	owner := p.UserID
	return QueryRestriction{OwnerUserID: &owner}, nil
}

// userHandler: no row-level general threshold in the table beyond
// admin/general claims; absent either, only the principal's own user row
// is visible (covers "GET /me" style lookups).
type userHandler struct{}

func NewUserHandler() Handler {
	return &userHandler{}
}

func (h *userHandler) CanPerform(ctx context.Context, p principal.Principal, action Action, resourceID string, resourceCtx map[string]any) (bool, error) {
	if p.Claims.HasGeneral(string(KindUser), string(action)) {
		return true, nil
	}
	if action == ActionGet {
		return resourceID == p.UserID, nil
	}
	return false, nil
}

func (h *userHandler) BuildQuery(ctx context.Context, p principal.Principal, action Action) (QueryRestriction, error) {
	if p.Claims.HasGeneral(string(KindUser), string(action)) {
		return QueryRestriction{Unrestricted: true}, nil
	}
	if action == ActionGet {
		owner := p.UserID
		return QueryRestriction{OwnerUserID: &owner}, nil
	}
	return QueryRestriction{Deny: true}, nil
}
