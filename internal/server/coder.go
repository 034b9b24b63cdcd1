package server

import (
	"encoding/json"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/computor-platform/computor-api/internal/apierr"
)

type provisionWorkspaceRequest struct {
	Template      string `json:"template"`
	WorkspaceName string `json:"workspace_name"`
}

type provisionWorkspaceResponse struct {
	WorkspaceID   string `json:"workspace_id"`
	Template      string `json:"template"`
	WorkspaceName string `json:"workspace_name"`
	Status        string `json:"status"`
}

// ProvisionWorkspaceAPI handles POST /coder/workspaces/provision. The Coder
// wire protocol itself is an external collaborator; this boundary only
// authorizes the request and hands back an opaque workspace id for the
// caller's out-of-process provisioner to pick up.
func (s *Server) ProvisionWorkspaceAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	if !p.IsAdmin && !p.Claims.HasGeneral("Workspace", "create") {
		writeError(w, r, apierr.Forbidden("workspace provisioning permission required"))
		return
	}

	var req provisionWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	if req.Template == "" {
		writeError(w, r, apierr.BadRequest("template is required"))
		return
	}
	if req.WorkspaceName == "" {
		req.WorkspaceName = "workspace-" + ulid.Make().String()
	}

	httpResponseJSON(w, provisionWorkspaceResponse{
		WorkspaceID:   ulid.Make().String(),
		Template:      req.Template,
		WorkspaceName: req.WorkspaceName,
		Status:        "provisioning",
	}, http.StatusAccepted)
}
